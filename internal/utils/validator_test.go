package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
)

type sample struct {
	ID   string `json:"id" validate:"required"`
	Mode string `validate:"omitempty,oneof=self everyone"`
	N    int    `validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{ID: "x"}))
	assert.NoError(t, ValidateStruct(sample{ID: "x", Mode: "everyone", N: 3}))

	err := ValidateStruct(sample{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "id is required", apperr.Public(err))

	err = ValidateStruct(sample{ID: "x", Mode: "all"})
	assert.Equal(t, "Mode must be one of self everyone", apperr.Public(err))

	assert.ErrorIs(t, ValidateStruct(sample{ID: "x", N: -1}), apperr.ErrValidation)
}
