/*
Package errs provides the application error type and its business code constants.

The codes travel unchanged to clients, in HTTP JSON bodies and in socket
`error` events, so they must never be renumbered.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body or socket frame is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownCommand indicates a socket frame whose type is not part of the command set.
	ErrUnknownCommand = 1008
)

// 2xxx: Room and Message Business Logic Errors
const (
	ErrRoomTypeInvalid     = 2101
	ErrRoomNameInvalid     = 2102
	ErrRoomNotFound        = 2103
	ErrRoomIsFull          = 2104
	ErrNotRoomMember       = 2105
	ErrAlreadyRoomMember   = 2106
	ErrCreatorCannotLeave  = 2107
	ErrNotRoomAdmin        = 2108
	ErrRoomSettingsInvalid = 2109

	ErrMessageEmpty          = 2200
	ErrMessageContentTooLong = 2201
	ErrMessageNotFound       = 2202
	ErrReplyTargetNotFound   = 2203
	ErrNotMessageSender      = 2204
	ErrEditWindowExpired     = 2205
	ErrDeleteForbidden       = 2206
	ErrInvalidEmoji          = 2207
	ErrInvalidMessageType    = 2208
	ErrInvalidMention        = 2209

	ErrFileSharingDisabled    = 2300
	ErrFileSizeTooLarge       = 2301
	ErrAttachmentCountInvalid = 2302
	ErrAttachmentKeyInvalid   = 2303
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid.
	ErrPowChallengeInvalid = 3002

	// ErrPowChallengeInternal indicates an internal failure of the PoW service.
	ErrPowChallengeInternal = 3003

	// ErrSessionKicked indicates that the server closed the connection on purpose.
	ErrSessionKicked = 3004

	ErrAlreadyLoggedIn    = 3005
	ErrInvalidName        = 3006
	ErrInvalidPassword    = 3007
	ErrUserAlreadyExists  = 3008
	ErrInvalidCredentials = 3009
	ErrUserNotFound       = 3010
	ErrInvalidStatus      = 3011
	ErrInvalidEmail       = 3012

	// ErrUnauthorized indicates a missing, malformed or expired credential.
	ErrUnauthorized = 3401

	// ErrTooManyAuthAttempts indicates the authentication-attempt throttle rejected the request.
	ErrTooManyAuthAttempts = 3429
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server error.
	ErrUnknown = 5000

	// ErrStoreFailure indicates that a persistence call failed.
	ErrStoreFailure = 5001

	// ErrFileStorageFailed indicates that the object storage call failed.
	ErrFileStorageFailed = 5002
)
