package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVamanaBuildParameters(t *testing.T) {
	p := DefaultVamanaBuildParameters(VamanaBuildParameters{})
	assert.Equal(t, 64, p.MaxDegree)
	assert.Equal(t, 60, p.PruneTo)
	assert.Equal(t, 1.2, p.Alpha)

	// Explicit non-zero fields are left untouched.
	custom := DefaultVamanaBuildParameters(VamanaBuildParameters{MaxDegree: 32})
	assert.Equal(t, 32, custom.MaxDegree, "explicit value should be preserved")
}

func TestDefaultVamanaSearchParameters(t *testing.T) {
	p := DefaultVamanaSearchParameters(VamanaSearchParameters{})
	assert.Equal(t, 100, p.SearchWindowSize)
	assert.Equal(t, 100, p.SearchBufferCapacity, "should default to SearchWindowSize")
}

func TestDefaultIVFBuildParameters(t *testing.T) {
	p := DefaultIVFBuildParameters(IVFBuildParameters{})
	assert.Equal(t, 1024, p.NumCentroids)
	assert.Equal(t, 10, p.NumIterations)
}

func TestDefaultIVFSearchParameters(t *testing.T) {
	p := DefaultIVFSearchParameters(IVFSearchParameters{})
	assert.Equal(t, 8, p.NProbes)
	assert.Equal(t, 1.0, p.KReorder)
}

func TestBuildParametersValidate(t *testing.T) {
	bad := BuildParameters{Vamana: &VamanaBuildParameters{MaxDegree: 32, PruneTo: 64}}
	assert.Error(t, bad.Validate(), "prune_to > max_degree should be rejected")

	good := BuildParameters{Vamana: &VamanaBuildParameters{MaxDegree: 64, PruneTo: 60}}
	assert.NoError(t, good.Validate())

	assert.Error(t, (BuildParameters{IVF: &IVFBuildParameters{NumCentroids: 0}}).Validate())
}

func TestLoadEngineConfigRejectsPathTraversal(t *testing.T) {
	_, err := LoadEngineConfig("../escape.yaml")
	assert.Error(t, err, "a path-separator filename should be rejected")

	_, err = LoadEngineConfig("")
	assert.Error(t, err, "an empty path should be rejected")
}

func TestLoadEngineConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(dir))

	const name = "engine.yaml"
	yamlDoc := "storage: leveldb\nworkers:\n  outer_pool_size: 16\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(yamlDoc), 0o644))

	cfg, err := LoadEngineConfig(name)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Workers.OuterPoolSize, "read from file")
	assert.Equal(t, 4, cfg.Workers.InnerPoolSize, "default")
	assert.Equal(t, StorageLevelDB, cfg.Storage)
	assert.Equal(t, "info", cfg.Logging.Level, "default")
}
