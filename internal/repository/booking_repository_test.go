package repository

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckInCode(t *testing.T) {
	pattern := regexp.MustCompile(`^BK-[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewCheckInCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	// 100 draws from a 32-bit space colliding would be remarkable.
	assert.Greater(t, len(seen), 95)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Violations: []string{"too long", "outside opening hours"}}
	assert.Contains(t, err.Error(), "too long")
	assert.Contains(t, err.Error(), "outside opening hours")
}
