package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorInstance *validator.Validate
	validatorOnce     sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their json names so errors match config keys.
		validatorInstance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validatorInstance
}

// FieldError is the first rule a struct field failed. Field is the dotted
// json path below the top-level struct, such as "log.level".
type FieldError struct {
	Field string
	Tag   string
	Param string
}

// Message describes the failed rule in words.
func (e *FieldError) Message() string {
	switch e.Tag {
	case "gte", "min":
		return "must be at least " + e.Param
	case "lte", "max":
		return "must be at most " + e.Param
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(e.Param), ", ")
	case "required":
		return "is required"
	}
	if e.Param != "" {
		return fmt.Sprintf("failed %s=%s", e.Tag, e.Param)
	}
	return "failed " + e.Tag
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message()
}

// ValidateStruct checks the validate tags of s and returns the first
// failure as a *FieldError.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &FieldError{Field: field, Tag: fe.Tag(), Param: fe.Param()}
}
