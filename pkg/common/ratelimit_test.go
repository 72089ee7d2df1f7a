package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Limit(t *testing.T) {
	tests := []struct {
		name  string
		rps   float64
		burst int
		want  float64
	}{
		{name: "limited", rps: 5, burst: 1, want: 5},
		{name: "zero disables limiting", rps: 0, burst: 1, want: 0},
		{name: "negative disables limiting", rps: -1, burst: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.rps, tt.burst)
			assert.Equal(t, tt.want, rl.Limit())
			require.NoError(t, rl.Wait(context.Background()))
		})
	}
}

func TestRateLimiter_UpdateLimits(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	rl.UpdateLimits(2.5, 3)
	assert.Equal(t, 2.5, rl.Limit())

	rl.UpdateLimits(0, 1)
	assert.Equal(t, float64(0), rl.Limit())
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(0.01, 1)
	require.NoError(t, rl.Wait(context.Background()), "burst token is available immediately")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}
