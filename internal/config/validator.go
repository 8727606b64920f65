package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers broker-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("origin", validateOrigin); err != nil {
		return fmt.Errorf("failed to register origin validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateOrigin validates a browser origin: scheme://host[:port] with no
// path, or the wildcard "*".
func validateOrigin(fl validator.FieldLevel) bool {
	origin := fl.Field().String()

	if origin == "*" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.Path == "" && u.RawQuery == "" && u.Fragment == ""
}

// validateDuration validates a Go duration string like "30s" or "1m".
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return c.validateInitialTransport()
}

// validateInitialTransport ensures the seeded connect form is coherent:
// HTTP transports need a server URL, stdio needs a command.
func (c *Config) validateInitialTransport() error {
	switch c.Initial.Transport {
	case "sse", "streamableHttp":
		if c.Initial.ServerURL == "" {
			return fmt.Errorf("initial: transport %q requires server_url", c.Initial.Transport)
		}
	case "stdio":
		if c.Initial.Command == "" {
			return errors.New("initial: transport \"stdio\" requires command")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "origin":
		return fmt.Sprintf("%s must be '*' or scheme://host[:port]", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
