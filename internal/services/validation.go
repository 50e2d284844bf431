package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tasklist/apiserver/internal/password"
)

// MinPasswordLength is the shortest password accepted at registration or
// password change.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest password bcrypt accepts. It counts bytes,
// not characters.
const MaxPasswordBytes = password.MaxBytes

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// validator's max counts runes; bcrypt limits bytes.
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	return v
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func passwordTag() string {
	return fmt.Sprintf("required,min=%d,maxbytes=%d", MinPasswordLength, MaxPasswordBytes)
}

// validationError converts validator output into an InvalidInput error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidInput("invalid request")
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
	}
	return invalidInput(strings.Join(messages, "; "))
}

// validateField checks a single value against tag and names it field in
// the resulting message.
func validateField(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return invalidInput(fieldMessage(field, verrs[0].Tag(), verrs[0].Param()))
	}
	return invalidInput(fmt.Sprintf("%s is invalid", field))
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
