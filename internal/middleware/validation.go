package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/care-scheduler/internal/model"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
)

var messages = map[string]string{
	"required":         "is required",
	"email":            "must be a valid email",
	"min":              "is too short or too small",
	"max":              "is too long or too large",
	"len":              "has the wrong length",
	"numeric":          "must be numeric",
	"oneof":            "is not an allowed value",
	"url":              "must be a valid URL",
	"appointment_type": "is not a known appointment type",
}

// RegisterValidators installs the custom tags on gin's validator and makes
// errors report json field names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v.RegisterValidation("appointment_type", func(fl validator.FieldLevel) bool {
		return model.AppointmentType(fl.Field().String()).Valid()
	})
}

// BindingError converts a bind failure into a ValidationError naming the
// offending fields.
func BindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validationf("malformed request: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s", e.Tag())
		}
		parts = append(parts, e.Field()+" "+msg)
	}
	return apperrors.Validation(strings.Join(parts, "; "))
}
