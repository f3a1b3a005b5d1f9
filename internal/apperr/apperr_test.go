package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeNotFound, "patient not found")
	wrapped := Wrap(inner, CodeInternal, "erase patient")

	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.Equal(t, "erase patient", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapPlainError(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeTransactionFailure, "erasure rolled back")

	assert.True(t, HasCode(err, CodeTransactionFailure))
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("create absence: %w", Newf(CodeValidation, "end date %s precedes start", "2024-03-01"))

	assert.ErrorIs(t, err, Validation)
	assert.NotErrorIs(t, err, Forbidden)
}

func TestCodeOfUntypedErrorIsInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeForbidden, CodeOf(New(CodeForbidden, "")))
	assert.Equal(t, "forbidden", New(CodeForbidden, "").Error())
}
