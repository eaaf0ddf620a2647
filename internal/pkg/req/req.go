/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes size-limited JSON bodies into request structs and maps every failure to a coded
errs.CustomError that the resp package can render.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"wnschat/internal/pkg/errs"
)

// MaxBodyBytes is the maximum accepted size of a JSON request body (64 KB).
const MaxBodyBytes int64 = 64 << 10

// BindJSON decodes the JSON body of r into dst. Unknown fields, trailing data and bodies larger
// than MaxBodyBytes are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
