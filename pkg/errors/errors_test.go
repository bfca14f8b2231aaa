package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesBase(t *testing.T) {
	err := Clone(ErrInsufficientStock, "only 20 left")
	require.True(t, errors.Is(err, ErrInsufficientStock))
	require.False(t, errors.Is(err, ErrInvalidQuantity))
	assert.Equal(t, "only 20 left", err.Message)
	assert.Equal(t, ErrInsufficientStock.Message, "requested quantity exceeds available stock")
}

func TestAlreadyTerminalIsInvalidTransition(t *testing.T) {
	err := Clone(ErrAlreadyTerminal, "offer distributed")
	require.True(t, errors.Is(err, ErrAlreadyTerminal))
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.False(t, errors.Is(ErrInvalidTransition, ErrAlreadyTerminal))

	wrapped := WrapAs(sql.ErrConnDone, ErrAlreadyTerminal, "")
	require.True(t, errors.Is(wrapped, ErrInvalidTransition))
	require.True(t, errors.Is(wrapped, sql.ErrConnDone))
}

func TestFromErrorNormalises(t *testing.T) {
	appErr := FromError(fmt.Errorf("outer: %w", ErrNotFound))
	require.Equal(t, http.StatusNotFound, appErr.Status)

	internal := FromError(errors.New("boom"))
	require.Equal(t, ErrInternal.Code, internal.Code)
	require.Nil(t, FromError(nil))
}

func TestRetryable(t *testing.T) {
	require.True(t, Wrap(errors.New("40001"), ErrTransactionConflict.Code, http.StatusConflict, "x").Retryable())
	require.False(t, ErrInsufficientStock.Retryable())
}
