package auth

import (
	stderrors "errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"marketchat/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration emails follow the program's own grammar, not RFC 5322,
	// so the rules are registered rather than using the built-in "email".
	_ = v.RegisterValidation("participant_email", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("participant_name", func(fl validator.FieldLevel) bool {
		return IsValidName(fl.Field().String())
	})
	return v
}

// RegisterRequest carries the fields every registration validates the same
// way, customer or seller.
type RegisterRequest struct {
	Name     string `validate:"required,participant_name"`
	Email    string `validate:"required,participant_email"`
	Password string `validate:"required"`
}

// ValidateRegister checks a registration request against the identity
// grammar, mapping field failures to the typed sentinel errors callers
// branch on.
func ValidateRegister(req RegisterRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if stderrors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			switch fe.Field() {
			case "Email":
				return errors.ErrInvalidEmailSyntax
			case "Name":
				return errors.ErrInvalidName
			}
		}
	}
	return err
}

// IsValidEmail implements the identity grammar: exactly one "@" neither
// first nor last, more than three characters, and none of the reserved or
// whitespace characters.
func IsValidEmail(email string) bool {
	if len(email) <= 3 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') || at == len(email)-1 {
		return false
	}
	for _, r := range email {
		if unicode.IsSpace(r) || strings.ContainsRune(`\/();`, r) {
			return false
		}
	}
	return true
}

// IsValidName rejects empty names and names carrying the field separator.
func IsValidName(name string) bool {
	return name != "" && !strings.Contains(name, ";")
}
