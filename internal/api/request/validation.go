package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// backupNameRegex keeps names safe to use as directory names on disk.
var backupNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

func init() {
	validate.RegisterValidation("backup_name", func(fl validator.FieldLevel) bool {
		return backupNameRegex.MatchString(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireName(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required name")
	}
	if !backupNameRegex.MatchString(s) {
		return "", fmt.Errorf("invalid name %q", s)
	}
	return s, nil
}
