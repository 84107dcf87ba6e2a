package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test structs
type TestProjectRequest struct {
	Slug           string `json:"slug" validate:"required,slug"`
	Name           string `json:"name" validate:"required,min=3,max=100"`
	DeploymentMode string `json:"deploymentMode" validate:"required,deploymentmode"`
}

type TestContainerRequest struct {
	ProjectID string `json:"project_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"required,min=3,max=100"`
	Port      int    `json:"port" validate:"gte=1,lte=65535"`
}

func TestValidateStruct_Success(t *testing.T) {
	req := TestContainerRequest{
		ProjectID: "123e4567-e89b-12d3-a456-426614174000",
		Name:      "frontend",
		Port:      5173,
	}

	err := ValidateStruct(req)
	assert.NoError(t, err)
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	req := TestContainerRequest{
		// Missing required fields
	}

	err := ValidateStruct(req)
	assert.Error(t, err)
}

func TestValidateRequest_Success(t *testing.T) {
	req := TestProjectRequest{
		Slug:           "my-app",
		Name:           "My App",
		DeploymentMode: "local-engine",
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateRequest_MultipleErrors(t *testing.T) {
	req := TestProjectRequest{
		Slug:           "Ab", // too short, uppercase
		Name:           "ab",
		DeploymentMode: "vm",
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "slug")
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "deploymentmode")
}

func TestValidateSlug_Valid(t *testing.T) {
	validSlugs := []string{
		"app",
		"my-app",
		"my-app-123",
		"a1b2c3",
	}

	for _, slug := range validSlugs {
		req := TestProjectRequest{
			Slug:           slug,
			Name:           "Test Project",
			DeploymentMode: "local-engine",
		}

		errs := ValidateRequest(req)
		assert.Nil(t, errs, "slug should be valid: %s", slug)
	}
}

func TestValidateSlug_Invalid(t *testing.T) {
	tests := []struct {
		name string
		slug string
	}{
		{"too short", "ab"},
		{"too long", string(make([]byte, 64))},
		{"uppercase", "My-App"},
		{"leading hyphen", "-my-app"},
		{"trailing hyphen", "my-app-"},
		{"underscore", "my_app"},
		{"spaces", "my app"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestProjectRequest{
				Slug:           tt.slug,
				Name:           "Test Project",
				DeploymentMode: "local-engine",
			}

			errs := ValidateRequest(req)
			assert.NotNil(t, errs)
			assert.Contains(t, errs, "slug")
		})
	}
}

func TestValidateDeploymentMode_Valid(t *testing.T) {
	for _, mode := range []string{"local-engine", "cluster"} {
		req := TestProjectRequest{
			Slug:           "my-app",
			Name:           "My App",
			DeploymentMode: mode,
		}

		errs := ValidateRequest(req)
		assert.Nil(t, errs, "deployment mode should be valid: %s", mode)
	}
}

func TestValidateDeploymentMode_Invalid(t *testing.T) {
	for _, mode := range []string{"vm", "bare-metal", ""} {
		req := TestProjectRequest{
			Slug:           "my-app",
			Name:           "My App",
			DeploymentMode: mode,
		}

		errs := ValidateRequest(req)
		assert.NotNil(t, errs)
		assert.Contains(t, errs, "deploymentmode")
	}
}

func TestValidateUUID_Valid(t *testing.T) {
	req := TestContainerRequest{
		ProjectID: "123e4567-e89b-12d3-a456-426614174000",
		Name:      "frontend",
		Port:      8080,
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateUUID_Invalid(t *testing.T) {
	invalidUUIDs := []string{
		"not-a-uuid",
		"123456",
		"123e4567-e89b-12d3-a456",
		"",
	}

	for _, uuid := range invalidUUIDs {
		req := TestContainerRequest{
			ProjectID: uuid,
			Name:      "frontend",
			Port:      8080,
		}

		errs := ValidateRequest(req)
		assert.NotNil(t, errs, "UUID should be invalid: %s", uuid)
		assert.Contains(t, errs, "projectid")
	}
}

func TestValidateMinMax_Strings(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{"valid", "Test Project", false},
		{"too short", "ab", true},
		{"too long", string(make([]byte, 101)), true},
		{"min length", "abc", false},
		{"max length", string(make([]byte, 100)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestProjectRequest{
				Slug:           "my-app",
				Name:           tt.value,
				DeploymentMode: "local-engine",
			}

			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "name")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}
