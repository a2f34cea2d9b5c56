package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/fields"
	dErrors "registrar/pkg/domain-errors"
)

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	registry := fields.Default()

	t.Run("loads and normalizes fixtures", func(t *testing.T) {
		f, err := os.Open("testdata/subjects.yaml")
		require.NoError(t, err)
		defer f.Close()

		records, err := LoadSeed(ctx, f, registry)
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "MALE", records[0].Values[fields.KeyGender])
		assert.True(t, records[0].IsActive)
		assert.False(t, records[1].IsActive)

		mem := NewInMemory()
		require.NoError(t, Seed(ctx, mem, records))
		n, err := mem.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("rejects malformed subject ids", func(t *testing.T) {
		_, err := LoadSeed(ctx, strings.NewReader("subjects:\n  - subjectId: \"12\"\n"), registry)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid field values", func(t *testing.T) {
		doc := "subjects:\n  - subjectId: \"1234567890\"\n    fields:\n      gender: ROBOT\n"
		_, err := LoadSeed(ctx, strings.NewReader(doc), registry)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects duplicate subjects", func(t *testing.T) {
		doc := "subjects:\n  - subjectId: \"1234567890\"\n  - subjectId: \"1234567890\"\n"
		_, err := LoadSeed(ctx, strings.NewReader(doc), registry)
		require.ErrorContains(t, err, "duplicate subject id")
	})

	t.Run("rejects unknown yaml keys", func(t *testing.T) {
		doc := "subjects:\n  - subjectId: \"1234567890\"\n    nickname: bob\n"
		_, err := LoadSeed(ctx, strings.NewReader(doc), registry)
		require.Error(t, err)
	})
}
