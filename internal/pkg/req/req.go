/*
Package req binds HTTP request bodies and query strings into handler inputs,
translating every failure into an errs code.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"roomchat/internal/pkg/errs"
)

const (
	// MaxFormMemory is the in-memory budget for non-file multipart fields.
	MaxFormMemory int64 = 8 << 20 // 8 MB

	// MaxRequestFileSize caps the whole multipart body, files included.
	MaxRequestFileSize int64 = 6 << 20 // 6 MB

	// MaxJSONBodySize caps JSON request bodies.
	MaxJSONBodySize int64 = 64 << 10 // 64 KB
)

// BindJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing content are rejected.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// SetupMultipart limits and parses a multipart form body.
func SetupMultipart(w http.ResponseWriter, r *http.Request) *errs.CustomError {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestFileSize)

	if err := r.ParseMultipartForm(MaxFormMemory); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}

		return errs.NewError(errs.ErrFormParseFailed)
	}

	return nil
}

// QueryInt reads a bounded integer query parameter, returning def when absent.
func QueryInt(r *http.Request, key string, def, min, max int) (int, *errs.CustomError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}

	return v, nil
}
