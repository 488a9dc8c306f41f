package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"roomchat/internal/pkg/logx"
)

// Kind classifies a CustomError by what went wrong, independent of its code.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindStore          Kind = "store"
)

// CustomError is the error type returned across handler boundaries.
// It carries a stable business code, a client-facing message, the HTTP
// status used by REST responses and the failure Kind.
type CustomError struct {
	Code    int
	Kind    Kind
	Message string
	Status  int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Is reports whether target is a CustomError with the same code.
func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewError builds a *CustomError from a predefined code.
// details are printf arguments for messages containing verbs; for ErrUnknown
// and ErrStoreFailure the first detail may be the underlying error, which is
// logged and never exposed. Unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	switch {
	case len(details) == 0:
	case code == ErrUnknown || code == ErrStoreFailure:
		if originalErr, ok := details[0].(error); ok {
			logx.Error(originalErr, "Handling internal error with underlying cause", "code", code)
		}
	case strings.Contains(customErr.Message, "%"):
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	default:
		logx.Warn("Details provided for error, but message template has no formatting placeholders. Details ignored.", "code", code)
	}

	return &customErr
}
