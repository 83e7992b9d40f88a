package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Mode   string         `json:"mode"`
	Speeds map[string]int `json:"speeds"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := New[doc](path)

	in := doc{Mode: "manual", Speeds: map[string]int{"fan-1": 55}}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestLoadOrDefault(t *testing.T) {
	s := New[doc](filepath.Join(t.TempDir(), "missing.json"))

	v, err := s.LoadOr(doc{Mode: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "auto", v.Mode)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New[doc](path).LoadOr(doc{})
	assert.Error(t, err)
}
