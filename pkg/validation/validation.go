package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	govalidator "github.com/go-playground/validator/v10"
)

const (
	PasswordMinLength = 6
	PasswordMaxLength = 128
)

// LoginForm is the sign-in form.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// RegisterForm is the sign-up form.
type RegisterForm struct {
	Username        string `json:"username" validate:"required,min=3,max=50,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=6,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password" errorMsg:"Passwords do not match"`
}

// PlaylistForm is used when creating a playlist.
type PlaylistForm struct {
	Name string `json:"name" validate:"required,max=100"`
}

var (
	validate     *govalidator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with custom rules registered.
func Validator() *govalidator.Validate {
	validateOnce.Do(func() {
		validate = govalidator.New()
		_ = validate.RegisterValidation("username", validateUsernameChars)
	})
	return validate
}

// ValidateStruct validates obj and returns a map of json field names to messages.
// A nil map means obj is valid.
func ValidateStruct(obj any) map[string]string {
	err := Validator().Struct(obj)
	if err == nil {
		return nil
	}

	var errs govalidator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"_": err.Error()}
	}

	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	out := make(map[string]string, len(errs))
	for _, e := range errs {
		field, _ := t.FieldByName(e.StructField())
		name := jsonName(field)
		if _, exists := out[name]; exists {
			continue
		}
		out[name] = messageFor(field, e)
	}
	return out
}

func jsonName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
		if name := strings.Split(tag, ",")[0]; name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

func messageFor(field reflect.StructField, e govalidator.FieldError) string {
	if msg := field.Tag.Get("errorMsg"); msg != "" {
		return msg
	}
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Value must be a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", e.Param())
	case "eqfield":
		return fmt.Sprintf("Value should be equal to %s", e.Param())
	case "username":
		return "Only letters, numbers, _ and - are allowed"
	default:
		return "This field is invalid"
	}
}

func validateUsernameChars(fl govalidator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidatePage validates a 1-based page index
func ValidatePage(page int) error {
	if page < 1 {
		return fmt.Errorf("page must be >= 1")
	}
	return nil
}
