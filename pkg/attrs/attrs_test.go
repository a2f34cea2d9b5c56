package attrs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	args := []any{
		"subject_id", "1234567890",
		"count", 3,
		slog.String("actor_id", "agent-7"),
		slog.Int("attempts", 2),
		"decision", "APPROVED",
	}

	assert.Equal(t, "1234567890", ExtractString(args, "subject_id"))
	assert.Equal(t, "agent-7", ExtractString(args, "actor_id"))
	assert.Equal(t, "APPROVED", ExtractString(args, "decision"))
	assert.Empty(t, ExtractString(args, "count"), "non-string value")
	assert.Empty(t, ExtractString(args, "attempts"), "non-string attr")
	assert.Empty(t, ExtractString(args, "missing"))
	assert.Empty(t, ExtractString([]any{"dangling"}, "dangling"))
}
