package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMissingFile(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.Extract(filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractInvalidFile(t *testing.T) {
	e := NewExtractor()
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, _, err := e.Extract(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestAvailable(t *testing.T) {
	assert.True(t, NewExtractor().Available())
}
