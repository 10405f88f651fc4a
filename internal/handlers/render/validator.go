package render

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const maxReferenceLen = 128

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("reference", validateReference)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Reward and adjustment references: quiz id, code, vote target. Empty is ok
func validateReference(fl validator.FieldLevel) bool {
	ref := fl.Field().String()
	if len(ref) > maxReferenceLen {
		return false
	}

	for _, r := range ref {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
