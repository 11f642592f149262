package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log/handlers/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "text", data: []byte("localhost")},
		{name: "overwrite", data: []byte("-----BEGIN CERTIFICATE-----\n")},
	}
	name := filepath.Join(t.TempDir(), "nested", "commonName.txt")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, WriteFileAtomic(name, tt.data, 0o600))
			got, err := os.ReadFile(name)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}

func TestRandomAgent(t *testing.T) {
	for range 10 {
		assert.NotEmpty(t, RandomAgent())
	}
}

func TestIndent(t *testing.T) {
	var padding int
	Indent(func(string) { padding = cli.Default.Padding }, 3)("indented")
	assert.Equal(t, normalPadding*3, padding)
	assert.Equal(t, normalPadding, cli.Default.Padding)
}
