package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ValidateConfigFields checks the configuration values that are present
// against their field definitions. Absent values are not an error here;
// MissingRequiredFields reports them.
func ValidateConfigFields(providerName string, config map[string]string, fields []ConfigField) error {
	for _, field := range fields {
		value, exists := config[field.Key]
		if !exists || strings.TrimSpace(value) == "" {
			continue
		}

		if err := validateFieldType(providerName, field, value); err != nil {
			return err
		}

		if err := validateFieldPattern(providerName, field, value); err != nil {
			return err
		}

		if err := validateFieldLength(providerName, field, value); err != nil {
			return err
		}
	}

	return nil
}

// MissingRequiredFields returns the keys of required fields that are absent or blank
func MissingRequiredFields(config map[string]string, fields []ConfigField) []string {
	var missing []string
	for _, field := range fields {
		if !field.Required {
			continue
		}
		if strings.TrimSpace(config[field.Key]) == "" {
			missing = append(missing, field.Key)
		}
	}
	return missing
}

// validateFieldType validates field based on its type
func validateFieldType(providerName string, field ConfigField, value string) error {
	switch field.Type {
	case "number":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%s: field '%s' must be a number", providerName, field.Key)
		}
	case "url":
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: field '%s' must be an absolute URL", providerName, field.Key)
		}
	case "boolean":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s: field '%s' must be 'true' or 'false'", providerName, field.Key)
		}
	case "json":
		if !json.Valid([]byte(value)) {
			return fmt.Errorf("%s: field '%s' must be valid JSON", providerName, field.Key)
		}
	}
	return nil
}

// validateFieldPattern validates field against regex pattern
func validateFieldPattern(providerName string, field ConfigField, value string) error {
	if field.Pattern == "" {
		return nil
	}

	matched, err := regexp.MatchString(field.Pattern, value)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern for field '%s': %v", providerName, field.Key, err)
	}

	if !matched {
		return fmt.Errorf("%s: field '%s' does not match required pattern", providerName, field.Key)
	}

	return nil
}

// validateFieldLength validates field length constraints
func validateFieldLength(providerName string, field ConfigField, value string) error {
	if field.MinLength > 0 && len(value) < field.MinLength {
		return fmt.Errorf("%s: field '%s' must be at least %d characters", providerName, field.Key, field.MinLength)
	}

	if field.MaxLength > 0 && len(value) > field.MaxLength {
		return fmt.Errorf("%s: field '%s' must not exceed %d characters", providerName, field.Key, field.MaxLength)
	}

	return nil
}
