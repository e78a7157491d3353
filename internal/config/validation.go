package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("octal_mode", func(fl validator.FieldLevel) bool {
		_, err := parseMode(fl.Field().String())
		return err == nil
	})
}

// Validate checks struct tags first and then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	names := make(map[string]bool)
	for i, site := range c.Sites {
		if names[site.Name] {
			return fmt.Errorf("sites[%d]: duplicate site name %q", i, site.Name)
		}
		names[site.Name] = true

		if site.Auth.Method == "publickey" && (site.Auth.PublicKey == "" || site.Auth.PrivateKey == "") {
			return fmt.Errorf("sites[%d]: publickey auth needs public_key and private_key", i)
		}
		if site.Fingerprint.Method != "" && site.Fingerprint.Expected == "" {
			return fmt.Errorf("sites[%d]: fingerprint.method set without fingerprint.expected", i)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// parseMode parses an octal permission string such as "0644".
func parseMode(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("mode %q: %w", s, err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("mode %q: only permission bits are allowed", s)
	}
	return uint32(v), nil
}
