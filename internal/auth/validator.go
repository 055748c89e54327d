package auth

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCredentials is returned by validation and login failures.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	validate        = validator.New(validator.WithRequiredStructEnabled())
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

func init() {
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
}

// Credentials is the body of signup and login requests.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Validate checks the shape of the credentials and reports the first broken
// rule in a human-readable form.
func (c Credentials) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%w: %s is required", ErrInvalidCredentials, fe.Field())
		case "min":
			return fmt.Errorf("%w: %s must be at least %s characters", ErrInvalidCredentials, fe.Field(), fe.Param())
		case "max":
			return fmt.Errorf("%w: %s must be at most %s characters", ErrInvalidCredentials, fe.Field(), fe.Param())
		case "username":
			return fmt.Errorf("%w: Username may only contain letters, digits and underscores", ErrInvalidCredentials)
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
}
