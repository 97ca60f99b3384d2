// Package request holds the decode-and-validate steps every write handler
// runs before touching the service layer.
//
// Each helper writes the 400 response itself and reports false, so a
// handler can simply return:
//
//	var student types.Student
//	if !request.DecodeJSON(w, r, &student) {
//	    return
//	}
package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/students-api/internal/utils/response"
)

// MaxBodySize caps the request body accepted by DecodeJSON.
const MaxBodySize = 1 << 20

// validate is shared; a *validator.Validate caches struct metadata and is
// safe for concurrent use.
var validate = validator.New()

// DecodeJSON reads the JSON body into v and validates it against its
// validate:"..." tags.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(v)

	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("request body is empty")))
		return false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}

	if err := validate.Struct(v); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(validateErrs))
			return false
		}
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}

	return true
}

// PathID parses the named path segment as a positive int64.
func PathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("invalid "+name+": must be a positive integer")))
		return 0, false
	}
	return id, true
}
