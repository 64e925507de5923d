package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "cs_test_****a1b2", MaskSecret("cs_test_9f8e7d6ca1b2"))
	assert.Equal(t, "****", MaskSecret("1001"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskKeys(t *testing.T) {
	metadata := map[string]any{
		"provider_session_id": "cs_test_9f8e7d6ca1b2",
		"provider":            "stripe",
		"amount":              "3776.00",
		"signature":           map[string]any{"v1": "abcdef123456"},
	}
	MaskKeys(metadata)

	assert.Equal(t, "cs_test_****a1b2", metadata["provider_session_id"])
	assert.Equal(t, "stripe", metadata["provider"])
	assert.Equal(t, "3776.00", metadata["amount"])
	assert.Equal(t, map[string]any{"v1": "****3456"}, metadata["signature"])
}
