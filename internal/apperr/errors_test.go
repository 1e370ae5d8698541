package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, Validation("bad"), ErrValidation)
	assert.ErrorIs(t, Unauthorized("no"), ErrUnauthorized)
	assert.ErrorIs(t, NotFound("gone"), ErrNotFound)
	assert.ErrorIs(t, Limit("full"), ErrLimit)

	cause := errors.New("socket closed")
	err := Persistence("failed to save message", cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", NotFound("recipient not found"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("x: %w", ErrValidation)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestPublicHidesStorageCause(t *testing.T) {
	err := Persistence("failed to save message", errors.New("mongo: connection reset"))
	assert.Equal(t, "failed to save message", Public(err))
	assert.Equal(t, "cannot message yourself", Public(Validation("cannot message yourself")))
	assert.Equal(t, "internal error", Public(errors.New("raw")))
}
