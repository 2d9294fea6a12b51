package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Count(t *testing.T) {
	c, err := NewCounter()
	require.NoError(t, err)

	assert.Zero(t, c.Count(""))
	short := c.Count("hello world")
	long := c.Count(strings.Repeat("hello world ", 50))
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestCounter_NilFallsBackToChars(t *testing.T) {
	var c *Counter
	assert.Equal(t, 3, c.Count("twelve chars"))
}

func TestCounter_Fit(t *testing.T) {
	var c *Counter // 4 chars per token
	parts := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}

	assert.Equal(t, parts, c.Fit(parts, 0))
	assert.Equal(t, parts[:2], c.Fit(parts, 5))
	assert.Empty(t, c.Fit(parts, 1))
	assert.Equal(t, parts, c.Fit(parts, 6))
}
