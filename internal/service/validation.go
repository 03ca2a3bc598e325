package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/itadmin/internal/config"
)

// validate — общий экземпляр валидатора входных данных сервисного слоя.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// hhmm — время «ЧЧ:ММ»
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := config.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

// validateStruct проверяет структуру и оборачивает ошибки в ErrValidation
// с перечислением полей.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
}
