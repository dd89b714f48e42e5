package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindLedgerSubmission.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	wrapped := fmt.Errorf("worker: %w", NewLedgerError(errors.New("BUSY")))
	assert.Equal(t, KindLedgerSubmission, KindOf(wrapped))
}

func TestRelayError_Details(t *testing.T) {
	err := NewValidationError("Message is required", nil)
	assert.Equal(t, "Message is required", err.Error())
	assert.Empty(t, err.Details())

	cause := errors.New("INVALID_SIGNATURE")
	ledgerErr := NewLedgerError(cause)
	assert.Equal(t, "INVALID_SIGNATURE", ledgerErr.Details())
	assert.ErrorIs(t, ledgerErr, cause)
}
