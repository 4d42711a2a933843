package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/questlog/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("boost_kind", validateBoostKind); err != nil {
		panic(fmt.Sprintf("failed to register boost_kind validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_mode", validateTaskMode); err != nil {
		panic(fmt.Sprintf("failed to register task_mode validator: %v", err))
	}
	if err := Validate.RegisterValidation("frequency_unit", validateFrequencyUnit); err != nil {
		panic(fmt.Sprintf("failed to register frequency_unit validator: %v", err))
	}
}

// validateBoostKind validates that a string names an applicable boost
func validateBoostKind(fl validator.FieldLevel) bool {
	kind := models.BoostKind(fl.Field().String())
	return kind.Active() && kind.IsValid()
}

// validateTaskMode validates that a string is a valid Mode enum value
func validateTaskMode(fl validator.FieldLevel) bool {
	return models.Mode(fl.Field().String()).IsValid()
}

// validateFrequencyUnit validates that a string is a valid FrequencyUnit enum value
func validateFrequencyUnit(fl validator.FieldLevel) bool {
	switch models.FrequencyUnit(fl.Field().String()) {
	case models.FrequencyDay, models.FrequencyWeek, models.FrequencyMonth:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
