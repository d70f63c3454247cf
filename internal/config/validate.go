package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return rverrors.ErrConfigInvalid(fieldPath(fe.Namespace()), describe(fe))
		}
		return rverrors.ErrConfigInvalid("config", err.Error()).WithCause(err)
	}

	if c.Journal.Driver == "postgres" && c.Journal.DSN == "" {
		return rverrors.ErrConfigInvalid("journal.dsn", "a postgres journal needs a connection string")
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
		return rverrors.ErrConfigInvalid("tracing.otlp_endpoint", "the otlp exporter needs an endpoint")
	}
	for _, name := range c.Overrides {
		if strings.TrimSpace(name) == "" {
			return rverrors.ErrConfigInvalid("overrides", "entity names must not be empty")
		}
	}
	if _, err := c.ConflictPolicy(); err != nil {
		return rverrors.ErrConfigInvalid("conflict", err.Error())
	}
	return nil
}

// JournalDSN returns the DSN to open, defaulting sqlite to the data root.
func (c *Config) JournalDSN() string {
	if c.Journal.DSN == "" && c.Journal.Driver == "sqlite" {
		return filepath.Join(c.DataRoot, "journal.db")
	}
	return c.Journal.DSN
}

// fieldPath turns "Config.Journal.Driver" into "journal.driver".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	isUpper := func(c byte) bool { return c >= 'A' && c <= 'Z' }
	isLower := func(c byte) bool { return c >= 'a' && c <= 'z' }

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) {
			// Break before a word start: "DataRoot", and "OTLPEndpoint" at "E".
			if i > 0 && (isLower(s[i-1]) || (isUpper(s[i-1]) && i+1 < len(s) && isLower(s[i+1]))) {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%q is not one of: %s", fmt.Sprint(fe.Value()), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%v is out of range (%s %s)", fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
