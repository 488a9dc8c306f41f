package errs

import "net/http"

// errorMap holds the template CustomError for every application code.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:         {Code: ErrInvalidParams, Kind: KindValidation, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Kind: KindValidation, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Kind: KindValidation, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Kind: KindValidation, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Kind: KindValidation, Message: "Failed to process uploaded data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Kind: KindValidation, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Kind: KindRateLimited, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownCommand:        {Code: ErrUnknownCommand, Kind: KindValidation, Message: "Unsupported command."},

	// 2xxx
	ErrRoomTypeInvalid:     {Code: ErrRoomTypeInvalid, Kind: KindValidation, Message: "Invalid chat room type.", Status: http.StatusBadRequest},
	ErrRoomNameInvalid:     {Code: ErrRoomNameInvalid, Kind: KindValidation, Message: "Chat room name must be between 3 and 50 characters.", Status: http.StatusBadRequest},
	ErrRoomNotFound:        {Code: ErrRoomNotFound, Kind: KindNotFound, Message: "Chat room not found.", Status: http.StatusNotFound},
	ErrRoomIsFull:          {Code: ErrRoomIsFull, Kind: KindValidation, Message: "Chat room is full.", Status: http.StatusBadRequest},
	ErrNotRoomMember:       {Code: ErrNotRoomMember, Kind: KindAuthorization, Message: "You are not a member of this chat room.", Status: http.StatusForbidden},
	ErrAlreadyRoomMember:   {Code: ErrAlreadyRoomMember, Kind: KindValidation, Message: "You are already a member of this chat room.", Status: http.StatusBadRequest},
	ErrCreatorCannotLeave:  {Code: ErrCreatorCannotLeave, Kind: KindAuthorization, Message: "Room creator cannot leave the room.", Status: http.StatusBadRequest},
	ErrNotRoomAdmin:        {Code: ErrNotRoomAdmin, Kind: KindAuthorization, Message: "Room admin privileges required.", Status: http.StatusForbidden},
	ErrRoomSettingsInvalid: {Code: ErrRoomSettingsInvalid, Kind: KindValidation, Message: "Invalid chat room settings.", Status: http.StatusBadRequest},

	ErrMessageEmpty:          {Code: ErrMessageEmpty, Kind: KindValidation, Message: "Message cannot be empty.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Kind: KindValidation, Message: "Message cannot exceed %d characters.", Status: http.StatusBadRequest},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Kind: KindNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrReplyTargetNotFound:   {Code: ErrReplyTargetNotFound, Kind: KindNotFound, Message: "Reply message not found.", Status: http.StatusBadRequest},
	ErrNotMessageSender:      {Code: ErrNotMessageSender, Kind: KindAuthorization, Message: "You can only edit your own messages.", Status: http.StatusForbidden},
	ErrEditWindowExpired:     {Code: ErrEditWindowExpired, Kind: KindAuthorization, Message: "Message is too old to edit.", Status: http.StatusBadRequest},
	ErrDeleteForbidden:       {Code: ErrDeleteForbidden, Kind: KindAuthorization, Message: "You can only delete your own messages.", Status: http.StatusForbidden},
	ErrInvalidEmoji:          {Code: ErrInvalidEmoji, Kind: KindValidation, Message: "Invalid emoji.", Status: http.StatusBadRequest},
	ErrInvalidMessageType:    {Code: ErrInvalidMessageType, Kind: KindValidation, Message: "Invalid message type.", Status: http.StatusBadRequest},
	ErrInvalidMention:        {Code: ErrInvalidMention, Kind: KindValidation, Message: "Invalid mention.", Status: http.StatusBadRequest},

	ErrFileSharingDisabled:    {Code: ErrFileSharingDisabled, Kind: KindAuthorization, Message: "File sharing is disabled in this chat room.", Status: http.StatusForbidden},
	ErrFileSizeTooLarge:       {Code: ErrFileSizeTooLarge, Kind: KindValidation, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrAttachmentCountInvalid: {Code: ErrAttachmentCountInvalid, Kind: KindValidation, Message: "A message can carry at most %d attachments.", Status: http.StatusBadRequest},
	ErrAttachmentKeyInvalid:   {Code: ErrAttachmentKeyInvalid, Kind: KindValidation, Message: "Invalid attachment.", Status: http.StatusBadRequest},

	// 3xxx
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Kind: KindAuthentication, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Kind: KindAuthentication, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInternal: {Code: ErrPowChallengeInternal, Kind: KindStore, Message: "Verification service error. Please try again later.", Status: http.StatusInternalServerError},
	ErrSessionKicked:        {Code: ErrSessionKicked, Kind: KindAuthentication, Message: "Your session was closed by the server."},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Kind: KindValidation, Message: "You are already signed in.", Status: http.StatusBadRequest},
	ErrInvalidName:          {Code: ErrInvalidName, Kind: KindValidation, Message: "Name must be between 2 and 50 characters.", Status: http.StatusBadRequest},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Kind: KindValidation, Message: "Password must be between 6 and 128 characters.", Status: http.StatusBadRequest},
	ErrUserAlreadyExists:    {Code: ErrUserAlreadyExists, Kind: KindValidation, Message: "An account with this email already exists.", Status: http.StatusConflict},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Kind: KindAuthentication, Message: "Incorrect email or password.", Status: http.StatusUnauthorized},
	ErrUserNotFound:         {Code: ErrUserNotFound, Kind: KindNotFound, Message: "Account not found.", Status: http.StatusNotFound},
	ErrInvalidStatus:        {Code: ErrInvalidStatus, Kind: KindValidation, Message: "Invalid status.", Status: http.StatusBadRequest},
	ErrInvalidEmail:         {Code: ErrInvalidEmail, Kind: KindValidation, Message: "Invalid email address.", Status: http.StatusBadRequest},
	ErrUnauthorized:         {Code: ErrUnauthorized, Kind: KindAuthentication, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrTooManyAuthAttempts:  {Code: ErrTooManyAuthAttempts, Kind: KindRateLimited, Message: "Too many authentication attempts. Please try again later.", Status: http.StatusTooManyRequests},

	// 5xxx
	ErrUnknown:           {Code: ErrUnknown, Kind: KindStore, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreFailure:      {Code: ErrStoreFailure, Kind: KindStore, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Kind: KindStore, Message: "File storage failed. Please try again.", Status: http.StatusBadGateway},
}
