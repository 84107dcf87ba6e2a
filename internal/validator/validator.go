package validator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("slug", validateSlug)
	validate.RegisterValidation("deploymentmode", validateDeploymentMode)
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateRequest validates a request struct and returns formatted errors
// Returns nil if validation passes, or a map of field errors
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			errors[field] = formatValidationError(e)
		}
	}

	return errors
}

// BindAndValidate binds JSON and validates in one step
// Returns true if successful, false if validation failed (and sets error response)
func BindAndValidate(c *gin.Context, req interface{}) bool {
	// Bind JSON
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return false
	}

	// Validate
	if errs := ValidateRequest(req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"fields": errs,
		})
		return false
	}

	return true
}

// formatValidationError converts validator errors to human-readable messages
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", e.Param())
	case "uuid":
		return "Must be a valid UUID"
	case "url":
		return "Must be a valid URL"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", e.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())
	case "slug":
		return "Must be 3-63 characters, lowercase alphanumeric with hyphens, and cannot start or end with a hyphen"
	case "deploymentmode":
		return "Must be one of: local-engine, cluster"
	default:
		return fmt.Sprintf("Validation failed: %s", e.Tag())
	}
}

// Custom Validators

// validateSlug ensures a Project slug is safe to use as a hostname label
// and a filesystem directory name (spec.md §6 hostnames are derived from it).
func validateSlug(fl validator.FieldLevel) bool {
	slug := fl.Field().String()

	if len(slug) < 3 || len(slug) > 63 {
		return false
	}
	if slug[0] == '-' || slug[len(slug)-1] == '-' {
		return false
	}

	for _, char := range slug {
		if !((char >= 'a' && char <= 'z') ||
			(char >= '0' && char <= '9') ||
			char == '-') {
			return false
		}
	}

	return true
}

// validateDeploymentMode restricts a Project's deployment mode to the two
// substrates the Driver abstraction supports.
func validateDeploymentMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "local-engine", "cluster":
		return true
	default:
		return false
	}
}
