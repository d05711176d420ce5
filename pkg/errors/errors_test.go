package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("appointment"), http.StatusNotFound},
		{SchedulingConflict("taken"), http.StatusBadRequest},
		{InvalidStateTransition("COMPLETED", "CANCELLED"), http.StatusConflict},
		{Authentication("no token"), http.StatusUnauthorized},
		{Authorization("denied"), http.StatusForbidden},
		{Persistence("insert", context.DeadlineExceeded), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("propose: %w", SchedulingConflict("slot taken"))

	assert.True(t, Is(err, ErrSchedulingConflict))
	assert.False(t, Is(err, ErrNotFound))
	assert.True(t, IsKind(err, KindSchedulingConflict))
	assert.Equal(t, KindSchedulingConflict, KindOf(err))
}

func TestPersistenceIsRetryable(t *testing.T) {
	err := Persistence("lock professional", context.DeadlineExceeded)

	assert.True(t, err.Retryable())
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.False(t, Validation("x").Retryable())
	assert.Equal(t, KindPersistence, KindOf(New("driver exploded")))
}
