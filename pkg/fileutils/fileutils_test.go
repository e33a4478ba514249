package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean name is untouched",
			input:    "Mystery - Author",
			expected: "Mystery - Author",
		},
		{
			name:     "slash and colon become underscores",
			input:    "TCP/IP Illustrated: Volume 1 - Stevens",
			expected: "TCP_IP Illustrated_ Volume 1 - Stevens",
		},
		{
			name:     "every illegal character is replaced",
			input:    `a/b\c:d?e%f*g|h"i<j>k`,
			expected: "a_b_c_d_e_f_g_h_i_j_k",
		},
		{
			name:     "whitespace runs collapse",
			input:    "Too   Many    Spaces - A",
			expected: "Too Many Spaces - A",
		},
		{
			name:     "leading and trailing dots trimmed",
			input:    ". Hidden Name .",
			expected: "Hidden Name",
		},
		{
			name:     "empty input gets a placeholder",
			input:    "",
			expected: "Unknown",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, SanitizeName(test.input))
		})
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.pdf")
	target := filepath.Join(dir, "Books", "Mystery - Author.pdf")
	require.NoError(t, os.WriteFile(source, []byte("pdf data"), 0644))

	require.NoError(t, MoveFile(source, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "pdf data", string(data))

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFileOverwritesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.pdf")
	target := filepath.Join(dir, "Books", "Mystery - Author.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(source, []byte("new data"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("old data"), 0644))

	require.NoError(t, MoveFile(source, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new data", string(data))
}

func TestMoveFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "nope.pdf"), filepath.Join(dir, "Books", "x.pdf"))
	assert.Error(t, err)
}

func TestRemoveExistingTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	require.NoError(t, RemoveExistingTarget(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Absent target is fine.
	assert.NoError(t, RemoveExistingTarget(path))
}

func TestRemoveExistingTargetRefusesDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "Books")
	require.NoError(t, os.Mkdir(sub, 0755))

	assert.Error(t, RemoveExistingTarget(sub))
}
