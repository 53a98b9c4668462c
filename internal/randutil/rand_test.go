package randutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsDeterministic(t *testing.T) {
	t.Parallel()

	a, b := New(42), New(42)
	for range 10 {
		assert.Equal(t, a.IntN(75), b.IntN(75))
	}
}

func TestSeedOrNow(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 1234)
	assert.Equal(t, int64(7), SeedOrNow(7, now))
	assert.Equal(t, int64(1234), SeedOrNow(0, now))
}
