package ride

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartTime(t *testing.T) {
	got, err := ParseStartTime("1714564800000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got)

	got, err = ParseStartTime("2024-05-01T12:00:00.5Z")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Nanosecond()))

	got, err = ParseStartTime("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = ParseStartTime("yesterday")
	assert.Error(t, err)
}

func TestNormalizeRating(t *testing.T) {
	assert.Equal(t, 5, NormalizeRating(true))
	assert.Equal(t, 1, NormalizeRating(false))
	assert.Equal(t, 5, NormalizeRating(float64(3)))
	assert.Equal(t, 1, NormalizeRating(float64(0)))
	assert.Equal(t, 1, NormalizeRating(nil))
	assert.Equal(t, 1, NormalizeRating(""))
}
