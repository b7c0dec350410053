package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

// Validate is shared so struct metadata is cached once per type.
var Validate = validator.New(validator.WithRequiredStructEnabled())

const maxJSONBody = 1 << 20

// DecodeJSON reads a JSON body into dst and runs struct validation.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Errorf(apperr.KindInvalidRequest, "invalid payload: %v", err)
	}
	return ValidateStruct(dst)
}

// ValidateStruct turns validator failures into an InvalidRequest error
// listing the offending fields.
func ValidateStruct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Errorf(apperr.KindInvalidRequest, "invalid payload: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperr.Errorf(apperr.KindInvalidRequest, "invalid payload: %s", strings.Join(parts, ", "))
}

// PathID parses a numeric path parameter.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Errorf(apperr.KindInvalidRequest, "invalid %s", name)
	}
	return id, nil
}
