package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	t.Run("lists the built-in types", func(t *testing.T) {
		assert.Equal(t, []string{"intelligence", "lead", "property", "repository"}, r.Types())
	})

	t.Run("resolves known types case-insensitively", func(t *testing.T) {
		def, exact := r.Resolve(" Property ")
		assert.True(t, exact)
		assert.Equal(t, "property", def.Type)
		assert.Equal(t, []string{"id", "address", "property_type"}, def.Required)
	})

	t.Run("unknown types fall back to lead", func(t *testing.T) {
		def, exact := r.Resolve("vehicle")
		assert.False(t, exact)
		assert.Equal(t, "lead", def.Type)
		assert.True(t, def.IsRequired("source_url"))
	})

	t.Run("required and optional sets are disjoint", func(t *testing.T) {
		for _, typ := range r.Types() {
			def, _ := r.Resolve(typ)
			for _, f := range def.Optional {
				assert.False(t, def.IsRequired(f), "%s.%s", typ, f)
			}
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("empty registry is rejected", func(t *testing.T) {
		_, err := New(nil, "")
		assert.ErrorIs(t, err, ErrEmptyRegistry)
	})

	t.Run("overlapping field sets are rejected", func(t *testing.T) {
		_, err := New(map[string]Definition{
			"lead": {Required: []string{"id"}, Optional: []string{"id"}},
		}, "lead")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both required and optional")
	})

	t.Run("fallback must exist", func(t *testing.T) {
		_, err := New(map[string]Definition{"lead": {Required: []string{"id"}}}, "property")
		assert.ErrorIs(t, err, ErrUnknownFallback)
	})

	t.Run("caller mutation does not leak into the registry", func(t *testing.T) {
		required := []string{"id"}
		r, err := New(map[string]Definition{"lead": {Required: required}}, "")
		require.NoError(t, err)
		required[0] = "changed"
		def, _ := r.Resolve("lead")
		assert.Equal(t, []string{"id"}, def.Required)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	content := `
fallback: listing
types:
  listing:
    required: [id, url]
    optional: [price]
  agent:
    required: [name]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "listing", r.Fallback())

	def, exact := r.Resolve("agent")
	assert.True(t, exact)
	assert.Equal(t, []string{"name"}, def.Required)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("types: ["))
	assert.Error(t, err)
}
