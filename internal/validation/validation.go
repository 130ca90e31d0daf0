// Package validation holds the explicit input checks for account flows.
// Every validator returns a list of field errors; an empty list means valid.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"authapi/internal/utils"
)

const (
	MinPasswordLength = 8
	MaxPasswordBytes  = utils.MaxPasswordBytes
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	validate = newValidator()

	mobilePattern  = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	mobileStripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(mobileStripper.Replace(fl.Field().String()))
	}); err != nil {
		panic("validation: register mobile: " + err.Error())
	}
	return v
}

func Email(field, email string) []FieldError {
	if err := validate.Var(email, "required,email"); err != nil {
		return []FieldError{{Field: field, Message: "Invalid email format"}}
	}
	return nil
}

func Mobile(field, mobile string) []FieldError {
	if err := validate.Var(mobile, "required,mobile"); err != nil {
		return []FieldError{{Field: field, Message: "Invalid mobile number"}}
	}
	return nil
}

func Required(field, value, message string) []FieldError {
	if strings.TrimSpace(value) == "" {
		return []FieldError{{Field: field, Message: message}}
	}
	return nil
}

// Password enforces the password policy: at least 8 characters, at least one
// digit and one uppercase letter, at most 72 bytes.
func Password(field, password string) []FieldError {
	var errs []FieldError
	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, FieldError{Field: field, Message: "Password must be at least 8 characters long"})
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, FieldError{Field: field, Message: "Password must be at most 72 bytes long"})
	}
	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		errs = append(errs, FieldError{Field: field, Message: "Must contain at least one number"})
	}
	if !hasUpper {
		errs = append(errs, FieldError{Field: field, Message: "Must contain at least one uppercase letter"})
	}
	return errs
}

// Registration validates every registration field and collects all failures.
func Registration(email, firstName, lastName, mobile, password string) []FieldError {
	var errs []FieldError
	errs = append(errs, Email("email", email)...)
	errs = append(errs, Required("firstname", firstName, "First name is required")...)
	errs = append(errs, Required("lastname", lastName, "Last name is required")...)
	errs = append(errs, Mobile("mobile", mobile)...)
	errs = append(errs, Password("password", password)...)
	return errs
}
