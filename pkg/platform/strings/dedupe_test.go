package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("broker list with padding and repeats", func(t *testing.T) {
		got := DedupeAndTrim([]string{" k1:9092", "k2:9092 ", "k1:9092", "", "  "})
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, got)
	})

	t.Run("empty input is returned as is", func(t *testing.T) {
		assert.Nil(t, DedupeAndTrim(nil))
	})
}
