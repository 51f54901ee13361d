package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

// jsonName names struct fields in validation errors the way clients see them.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Bind decodes the JSON body of r into a T and checks its validate tags.
// When it returns false the 400 response has already been written.
func Bind[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T

	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		Status(w, http.StatusBadRequest, Problem{Error: KindInvalidJSON, Message: decodeMessage(err)})
		return v, false
	}

	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			Fail(w, http.StatusBadRequest, err.Error())
			return v, false
		}

		p := Problem{Error: KindValidation, Fields: make(map[string]string, len(fieldErrs))}
		for _, fe := range fieldErrs {
			p.Fields[fe.Field()] = fieldMessage(fe)
		}
		Status(w, http.StatusBadRequest, p)
		return v, false
	}

	return v, true
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type)
	}
	return "malformed body: " + err.Error()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("needs at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	default:
		return "fails " + fe.Tag()
	}
}
