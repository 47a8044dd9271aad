package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommandCreatesDataFile(t *testing.T) {
	tmpdir := t.TempDir()
	dataFile := filepath.Join(tmpdir, "data.json")

	originalDataFile := cfg.DataFile
	t.Cleanup(func() { cfg.DataFile = originalDataFile })
	cfg.DataFile = dataFile

	var out bytes.Buffer
	initCmd.SetOut(&out)
	initCmd.Run(initCmd, nil)

	assert.Contains(t, out.String(), "Created data file")

	data, err := os.ReadFile(dataFile)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "list_data")
	assert.Contains(t, doc, "state_data")
}

func TestInitCommandExistingDataFile(t *testing.T) {
	tmpdir := t.TempDir()
	dataFile := filepath.Join(tmpdir, "data.json")
	require.NoError(t, os.WriteFile(dataFile, []byte("[]"), 0o644))

	originalDataFile := cfg.DataFile
	t.Cleanup(func() { cfg.DataFile = originalDataFile })
	cfg.DataFile = dataFile

	var out bytes.Buffer
	initCmd.SetOut(&out)
	initCmd.Run(initCmd, nil)

	assert.Contains(t, out.String(), "already exists")

	// untouched
	data, err := os.ReadFile(dataFile)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
