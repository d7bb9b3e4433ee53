package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.ConcurrentTargets)
	assert.Equal(t, 25, cfg.PostLimit)
	assert.Equal(t, "hot", cfg.ListingType)
	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, PolicyContinue, cfg.ErrorHandling)
	assert.Equal(t, []string{"json"}, cfg.ExportFormats)
	assert.True(t, cfg.CreateSidecars)
	assert.Empty(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lurk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets: [r/golang, u/alice]
concurrent_targets: 5
post_limit: 50
listing_type: top
time_period: week
min_score: 10
export_formats: [json, csv]
error_handling: halt
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"r/golang", "u/alice"}, cfg.Targets)
	assert.Equal(t, 5, cfg.ConcurrentTargets)
	assert.Equal(t, "top", cfg.ListingType)
	require.NotNil(t, cfg.MinScore)
	assert.Equal(t, 10, *cfg.MinScore)
	assert.Equal(t, []string{"json", "csv"}, cfg.ExportFormats)
	assert.Equal(t, PolicyHalt, cfg.ErrorHandling)
	assert.Empty(t, cfg.Validate())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LURK_POST_LIMIT", "7")
	t.Setenv("LURK_DRY_RUN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PostLimit)
	assert.True(t, cfg.DryRun)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.ConcurrentTargets = 0
	bad.NSFWMode = "maybe"
	bad.ErrorHandling = "explode"
	lo, hi := 100, 10
	bad.MinScore, bad.MaxScore = &lo, &hi

	errs := bad.Validate()
	assert.Len(t, errs, 4)
}

func TestAllTargetsMergesSources(t *testing.T) {
	file := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(file, []byte("r/pics\n# comment\n\nu/bob\nr/pics\n"), 0o644))

	cfg := &Config{
		Targets:     []string{"r/golang", "r/pics"},
		TargetsFile: file,
		TargetUser:  "alice",
	}
	targets, err := cfg.AllTargets()
	require.NoError(t, err)
	assert.Equal(t, []string{"r/golang", "r/pics", "u/bob", "u/alice"}, targets)
}

func TestAllTargetsMissingFile(t *testing.T) {
	cfg := &Config{TargetsFile: "/nonexistent/targets.txt"}
	_, err := cfg.AllTargets()
	assert.Error(t, err)
}

func TestHasCredentials(t *testing.T) {
	cfg := &Config{ClientID: "a", ClientSecret: "b", Username: "c", Password: "d"}
	assert.True(t, cfg.HasCredentials())
	cfg.Password = ""
	assert.False(t, cfg.HasCredentials())
}
