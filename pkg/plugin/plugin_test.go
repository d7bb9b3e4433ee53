package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, name, manifest, source string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))
	if source != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "handler.go"), []byte(source), 0o644))
	}
	return dir
}

const goodManifest = `name: imgur
version: 1.2.0
entry: imgur.so
handles: [image, gallery]
priority: 60
`

func TestLoadManifest(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "imgur", goodManifest, "")
	mf, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "imgur", mf.Name)
	assert.Equal(t, []string{"image", "gallery"}, mf.Handles)
	assert.Equal(t, 60, mf.Priority)
}

func TestManifestValidation(t *testing.T) {
	cases := map[string]string{
		"missing entry": "name: x\nversion: 1.0.0\nhandles: [image]\n",
		"bad version":   "name: x\nversion: latest\nentry: x.so\nhandles: [image]\n",
		"empty handles": "name: x\nversion: 1.0.0\nentry: x.so\nhandles: []\n",
		"bad name":      "name: Bad Name\nversion: 1.0.0\nentry: x.so\nhandles: [image]\n",
	}
	for label, manifest := range cases {
		dir := writePlugin(t, t.TempDir(), "p", manifest, "")
		_, err := LoadManifest(dir)
		assert.Error(t, err, label)
	}
}

func TestScanFlagsRiskyImports(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "sketchy", goodManifest, `package main

import (
	"os/exec"
)

func run() { exec.Command("rm").Run() }
`)
	res, err := ScanDir(dir)
	require.NoError(t, err)
	assert.True(t, res.Blocked())
	assert.Equal(t, RiskCritical, res.Level)
}

func TestScanCleanSource(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "clean", goodManifest, `package main

import "strings"

func norm(s string) string { return strings.ToLower(s) }
`)
	res, err := ScanDir(dir)
	require.NoError(t, err)
	assert.False(t, res.Blocked())
}

func TestManagerBlocksHighRisk(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "danger", goodManifest, "package main\nimport \"syscall\"\nvar _ = syscall.Getpid\n")

	m := NewManager(nil, nil)
	m.open = func(string) (any, func() error, error) {
		t.Fatal("blocked plugin must never be opened")
		return nil, nil, nil
	}
	loaded, err := m.Load(root)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestManagerLoadsAndCleansUp(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "imgur", goodManifest, "package main\nfunc ok() {}\n")

	cleaned := false
	m := NewManager(nil, nil)
	m.open = func(path string) (any, func() error, error) {
		assert.Equal(t, filepath.Join(root, "imgur", "imgur.so"), path)
		return "factory", func() error { cleaned = true; return nil }, nil
	}
	loaded, err := m.Load(root)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "factory", loaded[0].Factory)

	m.Close()
	assert.True(t, cleaned)
}

func TestManagerMissingRoot(t *testing.T) {
	m := NewManager(nil, nil)
	loaded, err := m.Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManagerOpenFailureIsSkipped(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "broken", goodManifest, "")

	m := NewManager(nil, nil)
	m.open = func(string) (any, func() error, error) {
		return nil, nil, errors.New("not a shared object")
	}
	loaded, err := m.Load(root)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
