package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStruct_LoginForm(t *testing.T) {
	tests := []struct {
		name       string
		form       LoginForm
		wantFields []string
	}{
		{"valid", LoginForm{Email: "user@example.com", Password: "secret1"}, nil},
		{"empty", LoginForm{}, []string{"email", "password"}},
		{"invalid email", LoginForm{Email: "invalid-email", Password: "secret1"}, []string{"email"}},
		{"short password", LoginForm{Email: "user@example.com", Password: "abc"}, []string{"password"}},
		{"long password", LoginForm{Email: "user@example.com", Password: strings.Repeat("a", 129)}, []string{"password"}},
		{"boundary password", LoginForm{Email: "user@example.com", Password: strings.Repeat("a", 128)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateStruct(tt.form)
			if tt.wantFields == nil {
				assert.Nil(t, errs)
				return
			}
			keys := make([]string, 0, len(errs))
			for k := range errs {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantFields, keys)
		})
	}
}

func TestValidateStruct_RegisterForm(t *testing.T) {
	form := RegisterForm{
		Username:        "user name",
		Email:           "user@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret2",
	}

	errs := ValidateStruct(&form)

	assert.Equal(t, "Passwords do not match", errs["confirmPassword"])
	assert.Equal(t, "Only letters, numbers, _ and - are allowed", errs["username"])
	assert.NotContains(t, errs, "email")
	assert.NotContains(t, errs, "password")
}

func TestValidateStruct_Messages(t *testing.T) {
	errs := ValidateStruct(LoginForm{Email: "nope", Password: "abc"})

	assert.Equal(t, "Value must be a valid email address", errs["email"])
	assert.Equal(t, "Must be at least 6 characters", errs["password"])
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://localhost:8080", false},
		{"valid ws", "ws://localhost:8080/ws", false},
		{"empty", "", true},
		{"bad scheme", "ftp://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePage(t *testing.T) {
	assert.NoError(t, ValidatePage(1))
	assert.Error(t, ValidatePage(0))
	assert.Error(t, ValidatePage(-3))
}
