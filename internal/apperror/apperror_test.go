package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("quote", 12),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict(CodeAlreadyVoted, "already voted"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized(CodeInvalidCredentials, "bad password"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "wrapped Conflict still matches",
			err:       fmt.Errorf("casting vote: %w", Conflict(CodeAlreadyVoted, "already voted")),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("quote", 12),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Forbidden does NOT match ErrUnauthorized",
			err:       Forbidden("nope"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NotFound("quote", int64(7)).Error(); got != "quote not found with id 7" {
		t.Errorf("NotFound().Error() = %q", got)
	}
	if got := Conflict(CodeNotVoted, "you have not voted").Error(); got != "you have not voted" {
		t.Errorf("Conflict().Error() = %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict(CodeAlreadyVoted, "already voted"))
	if got := CodeOf(err); got != CodeAlreadyVoted {
		t.Errorf("CodeOf() = %q, want %q", got, CodeAlreadyVoted)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("name", "The username is not the right size! Try 4-16 characters.")
	if err.Field != "name" {
		t.Errorf("Field = %q, want %q", err.Field, "name")
	}
}
