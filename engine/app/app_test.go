package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurkhq/lurk/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Targets:           []string{"golang"},
		ConcurrentTargets: 3,
		PostLimit:         5,
		ListingType:       "hot",
		NSFWMode:          config.NSFWExclude,
		FilterComposition: "and",
		ErrorHandling:     config.PolicyContinue,
		Timeout:           300 * time.Second,
		OutputDir:         t.TempDir(),
		FilenameTemplate:  "{id}",
		ExportFormats:     []string{"json"},
		ExportDir:         t.TempDir(),
	}
}

func TestNewBuildsDefaultStageList(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.Equal(t,
		[]string{"acquisition", "filter", "processing", "export"},
		a.executor.StageNames())
}

func TestOrganizeStageIsOptIn(t *testing.T) {
	cfg := testConfig(t)
	cfg.Organize = true
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.Equal(t,
		[]string{"acquisition", "filter", "processing", "organize", "export"},
		a.executor.StageNames())
}

func TestDryRunKeepsStageListIntact(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.Equal(t,
		[]string{"acquisition", "filter", "processing", "export"},
		a.executor.StageNames())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ConcurrentTargets = 99
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewUsesSessionStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionDB = filepath.Join(t.TempDir(), "sessions.db")
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	found, err := a.Store.FindResumable(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRunFailsWithoutTargets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Targets = nil
	cfg.ErrorHandling = config.PolicyHalt
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	require.Error(t, a.Run(context.Background()))
}
