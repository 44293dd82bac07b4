package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	inputValidator *validator.Validate
	trans          ut.Translator

	identifierPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	columnTypePattern   = regexp.MustCompile(`^[A-Za-z]+(\(\d+(,\s*\d+)?\))?( unsigned)?$`)
	columnLengthPattern = regexp.MustCompile(`^\d+(,\s*\d+)?$`)
)

func init() {
	inputValidator = validator.New()

	_ = inputValidator.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return IsIdentifier(fl.Field().String())
	})
	_ = inputValidator.RegisterValidation("columntype", func(fl validator.FieldLevel) bool {
		return columnTypePattern.MatchString(fl.Field().String())
	})
	_ = inputValidator.RegisterValidation("columnlength", func(fl validator.FieldLevel) bool {
		return columnLengthPattern.MatchString(fl.Field().String())
	})

	uni := ut.New(en.New(), en.New())
	trans, _ = uni.GetTranslator("en")

	_ = enTranslations.RegisterDefaultTranslations(inputValidator, trans)

	registerTranslation("identifier", "{0} must be a valid SQL identifier")
	registerTranslation("columntype", "{0} must be a valid column type")
	registerTranslation("columnlength", "{0} must be a valid column length")
}

func registerTranslation(tag string, text string) {
	_ = inputValidator.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		translated, _ := ut.T(tag, fe.Field())
		return translated
	})
}

// IsIdentifier reports whether name can be interpolated into SQL as a table
// or column name.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidationError is returned when a column rejects a written value.
type ValidationError struct {
	Column string
	Value  interface{}
	msg    string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func NewValidationError(column string, value interface{}, msg string) error {
	return &ValidationError{Column: column, Value: value, msg: msg}
}

// TranslateValidatorError turns validator errors into a single readable error.
func TranslateValidatorError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	translated := validationErrors.Translate(trans)
	vals := make([]string, 0, len(translated))
	for _, fe := range validationErrors {
		vals = append(vals, strings.TrimSpace(translated[fe.Namespace()]))
	}
	return errors.New(strings.Join(vals, " "))
}

func validateDefinition(column ColumnDefinition) error {
	if err := TranslateValidatorError(inputValidator.Struct(column)); err != nil {
		return err
	}
	if column.Validate != "" {
		var probe interface{} = ""
		if err := validateVar(probe, column.Validate); err != nil {
			var validationErrors validator.ValidationErrors
			if !errors.As(err, &validationErrors) {
				return err
			}
		}
	}
	return nil
}

// validateVar runs a validator tag; unknown tags make the validator panic,
// which is reported as an error instead.
func validateVar(value interface{}, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation tag %q: %v", tag, r)
		}
	}()
	return inputValidator.Var(value, tag)
}

// ValidateValue checks a value written to column, first against the column's
// validator tag then against its callback, and returns the value to store.
func ValidateValue(column ColumnDefinition, value interface{}) (interface{}, error) {
	if value == nil {
		if !column.AllowNull {
			return nil, NewValidationError(column.Name, value, fmt.Sprintf("%s must not be null", column.Name))
		}
		return nil, nil
	}

	if column.Validate != "" {
		if err := validateVar(value, column.Validate); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
				msg := strings.TrimSpace(validationErrors[0].Translate(trans))
				return nil, NewValidationError(column.Name, value, column.Name+" "+msg)
			}
			return nil, NewValidationError(column.Name, value, fmt.Sprintf("%s: %v", column.Name, err))
		}
	}

	if column.Validator != nil {
		validated, err := column.Validator(value)
		if err != nil {
			return nil, NewValidationError(column.Name, value, fmt.Sprintf("%s: %v", column.Name, err))
		}
		value = validated
	}

	return value, nil
}
