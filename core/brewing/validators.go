package brewing

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/beerxchange/core"
)

var (
	stepTypeTag  = "steptype"
	stepTypeText = "unknown step type"

	brewStatusTag  = "brewstatus"
	brewStatusText = "status must be one of planned, active, conditioning, completed, archived"
)

// InitValidators registers the brewing validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(stepTypeTag, stepTypeValidation)
	core.RegisterCustomTranslation(validate, translator, stepTypeTag, stepTypeText)

	_ = validate.RegisterValidation(brewStatusTag, brewStatusValidation)
	core.RegisterCustomTranslation(validate, translator, brewStatusTag, brewStatusText)
}

func stepTypeValidation(fl validator.FieldLevel) bool {
	st := core.CleanString(fl.Field().String())
	for _, t := range StepTypes {
		if st == t {
			return true
		}
	}
	return false
}

func brewStatusValidation(fl validator.FieldLevel) bool {
	return isStatus(core.CleanString(fl.Field().String()))
}
