package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAmountMismatch, http.StatusBadRequest},
		{KindAuth, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindExternalService, http.StatusInternalServerError},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.kind), string(tt.kind))
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("verify: %w", ExternalService("Transaction lookup failed", cause))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindExternalService, e.Kind)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindExternalService))
	assert.False(t, Is(err, KindInternal))
}
