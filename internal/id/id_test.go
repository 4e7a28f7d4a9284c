package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id, err := Generate(PrefixCycle)
		require.NoError(t, err)
		assert.False(t, seen[id], "ID should be unique: %s", id)
		seen[id] = true
	}

	assert.Len(t, seen, count)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixCycle, PrefixClient} {
		t.Run(prefix, func(t *testing.T) {
			id, err := Generate(prefix)
			require.NoError(t, err)

			require.True(t, strings.HasPrefix(id, prefix+"-"))
			suffix := strings.TrimPrefix(id, prefix+"-")
			assert.Len(t, suffix, shortLength)

			for _, char := range suffix {
				assert.True(t,
					(char >= 'A' && char <= 'Z') ||
						(char >= 'a' && char <= 'z') ||
						(char >= '0' && char <= '9') ||
						char == '_' || char == '-',
					"Character %c should be URL-safe", char)
			}
		})
	}
}

func TestMustGenerate(t *testing.T) {
	id := MustGenerate(PrefixClient)
	assert.True(t, strings.HasPrefix(id, "lr-"))
}
