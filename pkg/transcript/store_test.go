package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveLoad(t *testing.T) {
	t.Run("should round-trip a transcript", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())

		turns := []Turn{
			{Role: RoleUser, Parts: []string{"I open the door"}},
			{Role: RoleModel, Parts: []string{"The hinges groan."}},
		}
		require.NoError(t, store.Save(dir, turns))

		loaded, err := store.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, turns, loaded)
	})

	t.Run("should return empty transcript for missing file", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		turns, err := store.Load(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("should recover from corrupt snapshot", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_history.json"), []byte("{not json"), 0o600))

		turns, err := store.Load(dir)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("should merge adjacent roles on load", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())
		raw := `[{"role":"user","parts":["a"]},{"role":"user","parts":["b"]}]`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_history.json"), []byte(raw), 0o600))

		turns, err := store.Load(dir)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "a\n\nb", turns[0].Text())
	})
}

func TestStoreUndoLast(t *testing.T) {
	t.Run("should remove last exchange", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())

		turns := []Turn{
			{Role: RoleUser, Parts: []string{"first"}},
			{Role: RoleModel, Parts: []string{"reply one"}},
			{Role: RoleUser, Parts: []string{"second"}},
			{Role: RoleModel, Parts: []string{"reply two"}},
		}
		require.NoError(t, store.Save(dir, turns))

		preview, err := store.UndoLast(dir)
		require.NoError(t, err)
		assert.Equal(t, "reply two", preview)

		remaining, err := store.Load(dir)
		require.NoError(t, err)
		require.Len(t, remaining, 2)
		assert.Equal(t, "reply one", remaining[1].Text())
	})

	t.Run("should fail on empty history", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		_, err := store.UndoLast(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("should truncate long previews", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())

		long := make([]byte, 120)
		for i := range long {
			long[i] = 'x'
		}
		turns := []Turn{
			{Role: RoleUser, Parts: []string{"q"}},
			{Role: RoleModel, Parts: []string{string(long)}},
		}
		require.NoError(t, store.Save(dir, turns))

		preview, err := store.UndoLast(dir)
		require.NoError(t, err)
		assert.Len(t, preview, 53)
	})

	t.Run("should refuse when the last turn is not a model reply", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())

		turns := []Turn{
			{Role: RoleUser, Parts: []string{"hello?"}},
		}
		require.NoError(t, store.Save(dir, turns))

		_, err := store.UndoLast(dir)
		assert.Error(t, err)

		remaining, err := store.Load(dir)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
	})

	t.Run("should keep previews valid UTF-8", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(zerolog.Nop())

		turns := []Turn{
			{Role: RoleUser, Parts: []string{"q"}},
			{Role: RoleModel, Parts: []string{strings.Repeat("ö", 60)}},
		}
		require.NoError(t, store.Save(dir, turns))

		preview, err := store.UndoLast(dir)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(preview))
		assert.Equal(t, strings.Repeat("ö", 50)+"...", preview)
	})
}
