package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Feed endpoints accept several historical field spellings for the same
// parameters, so the schemas admit every alias and the handler layer
// folds them onto the canonical request.
const feedRequestSchema = `{
	"type": "object",
	"properties": {
		"user_id": {"type": ["integer", "string"]},
		"SELF_ID": {"type": ["integer", "string"]},
		"excluded_ids": {
			"type": ["array", "string", "null"],
			"items": {"type": ["integer", "string"]}
		},
		"LAST_IDS": {
			"type": ["array", "string", "null"],
			"items": {"type": ["integer", "string"]}
		},
		"videos_excluidos": {
			"type": ["array", "string", "null"],
			"items": {"type": ["integer", "string"]}
		},
		"size": {"type": ["integer", "string"]},
		"MAX_SIZE": {"type": ["integer", "string"]},
		"session_id": {"type": "string"},
		"seed": {"type": "integer"}
	},
	"anyOf": [
		{"required": ["user_id"]},
		{"required": ["SELF_ID"]}
	]
}`

const rewardRequestSchema = `{
	"type": "object",
	"required": ["pool", "context", "reward"],
	"properties": {
		"pool": {"type": "string", "enum": ["VMP", "AU", "NU"]},
		"context": {
			"type": "array",
			"items": {"type": "number"},
			"minItems": 18,
			"maxItems": 18
		},
		"reward": {"type": "number"}
	}
}`

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// SchemaValidator handles JSON schema validation for API requests
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the embedded request schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}

	sources := map[string]string{
		"feed-request":   feedRequestSchema,
		"reward-request": rewardRequestSchema,
	}

	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateFeedRequest validates a feed request body.
func (sv *SchemaValidator) ValidateFeedRequest(data []byte) *ValidationResult {
	return sv.validate("feed-request", data)
}

// ValidateRewardRequest validates a bandit reward body.
func (sv *SchemaValidator) ValidateRewardRequest(data []byte) *ValidationResult {
	return sv.validate("reward-request", data)
}

func (sv *SchemaValidator) validate(schemaName string, data []byte) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	if !json.Valid(data) {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "body",
				Message: "Request body is not valid JSON",
				Code:    "INVALID_JSON",
			}},
		}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "body",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{Valid: result.Valid()}
	if !result.Valid() {
		for _, resultError := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   resultError.Field(),
				Message: resultError.Description(),
				Code:    "SCHEMA_VIOLATION",
			})
		}
	}
	return validationResult
}

// ToAPIError converts validation errors to the API error envelope.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": fieldErrors,
		},
	}
}
