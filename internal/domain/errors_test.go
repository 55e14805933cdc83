package domain

import (
	"errors"
	"fmt"
	"testing"

	"helpr/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		is   error
		text string
	}{
		{NotFound("booking"), ErrNotFound, "booking not found"},
		{Forbidden("admin access required"), ErrForbidden, "admin access required"},
		{Conflict("phone already registered"), ErrConflict, "phone already registered"},
		{Invalid("content", "content is required"), ErrValidation, "content is required"},
		{&TransitionError{Action: "start", From: models.StatusRequested}, ErrInvalidTransition, "cannot start booking in REQUESTED state"},
		{&TransitionError{From: models.StatusClosed, To: models.StatusDisputed}, ErrInvalidTransition, "cannot transition booking from CLOSED to DISPUTED"},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("handler: %w", tt.err)
		assert.ErrorIs(t, wrapped, tt.is)
		assert.EqualError(t, tt.err, tt.text)
		assert.True(t, IsClientError(wrapped))
	}
}

func TestValidationErrorFields(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "description", Message: "description is too short"},
		{Field: "scheduled_at", Message: "scheduled_at must be in the future"},
	}}
	assert.EqualError(t, err, "description is too short; scheduled_at must be in the future")

	var ve *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &ve))
	assert.Len(t, ve.Fields, 2)

	assert.EqualError(t, &ValidationError{}, "validation failed")
}
