// Package config loads the YAML documents that drive index construction,
// search, and engine-level wiring, continuing the teacher's
// gopkg.in/yaml.v3-based loader.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VamanaBuildParameters configures graph construction (spec.md §6).
type VamanaBuildParameters struct {
	MaxDegree               int     `yaml:"max_degree"`
	PruneTo                 int     `yaml:"prune_to"`
	Alpha                   float64 `yaml:"alpha"`
	ConstructionWindowSize  int     `yaml:"construction_window_size"`
	MaxCandidatePoolSize    int     `yaml:"max_candidate_pool_size"`
	UseFullSearchHistory    bool    `yaml:"use_full_search_history"`
}

// VamanaSearchParameters configures a greedy-search call. A zero field
// requests the engine default, per spec.md §6.
type VamanaSearchParameters struct {
	SearchWindowSize     int `yaml:"search_window_size"`
	SearchBufferCapacity int `yaml:"search_buffer_capacity"`
	PrefetchLookahead    int `yaml:"prefetch_lookahead"`
	PrefetchStep         int `yaml:"prefetch_step"`
}

// IVFBuildParameters configures clustering (spec.md §6).
type IVFBuildParameters struct {
	NumCentroids               int     `yaml:"num_centroids"`
	MinibatchSize              int     `yaml:"minibatch_size"`
	NumIterations               int     `yaml:"num_iterations"`
	IsHierarchical              bool    `yaml:"is_hierarchical"`
	TrainingFraction             float64 `yaml:"training_fraction"`
	HierarchicalLevel1Clusters   int     `yaml:"hierarchical_level1_clusters"`
	Seed                        uint64  `yaml:"seed"`
}

// IVFSearchParameters configures a probed search, spec.md §4.10.
type IVFSearchParameters struct {
	NProbes  int     `yaml:"n_probes"`
	KReorder float64 `yaml:"k_reorder"`
}

// DefaultVamanaBuildParameters fills the zero fields of p with
// spec.md §4.7/§4.8's stated tuning defaults (prune_to = max_degree-4,
// alpha = 1.2 for L2); pass a zero-value VamanaBuildParameters for the
// unmodified defaults.
func DefaultVamanaBuildParameters(p VamanaBuildParameters) VamanaBuildParameters {
	if p.MaxDegree == 0 {
		p.MaxDegree = 64
	}
	if p.PruneTo == 0 {
		p.PruneTo = p.MaxDegree - 4
		if p.PruneTo < 1 {
			p.PruneTo = p.MaxDegree
		}
	}
	if p.Alpha == 0 {
		p.Alpha = 1.2
	}
	if p.ConstructionWindowSize == 0 {
		p.ConstructionWindowSize = 200
	}
	if p.MaxCandidatePoolSize == 0 {
		p.MaxCandidatePoolSize = 750
	}
	return p
}

// DefaultVamanaSearchParameters fills zero fields of p with engine
// defaults, matching spec.md §6's "a zero in any field requests the
// engine default".
func DefaultVamanaSearchParameters(p VamanaSearchParameters) VamanaSearchParameters {
	if p.SearchWindowSize == 0 {
		p.SearchWindowSize = 100
	}
	if p.SearchBufferCapacity == 0 {
		p.SearchBufferCapacity = p.SearchWindowSize
	}
	if p.PrefetchLookahead == 0 {
		p.PrefetchLookahead = 4
	}
	if p.PrefetchStep == 0 {
		p.PrefetchStep = 1
	}
	return p
}

// DefaultIVFBuildParameters fills the zero fields of p with spec.md
// §4.10's stated defaults; pass a zero-value IVFBuildParameters for
// the unmodified defaults.
func DefaultIVFBuildParameters(p IVFBuildParameters) IVFBuildParameters {
	if p.NumCentroids == 0 {
		p.NumCentroids = 1024
	}
	if p.MinibatchSize == 0 {
		p.MinibatchSize = 4096
	}
	if p.NumIterations == 0 {
		p.NumIterations = 10
	}
	if p.TrainingFraction == 0 {
		p.TrainingFraction = 1.0
	}
	if p.HierarchicalLevel1Clusters == 0 {
		p.HierarchicalLevel1Clusters = 16
	}
	return p
}

// DefaultIVFSearchParameters fills zero fields with engine defaults.
func DefaultIVFSearchParameters(p IVFSearchParameters) IVFSearchParameters {
	if p.NProbes == 0 {
		p.NProbes = 8
	}
	if p.KReorder == 0 {
		p.KReorder = 1.0
	}
	return p
}

// StorageKind selects the vector storage backend for an index.
type StorageKind string

const (
	StorageFloat32 StorageKind = "float32"
	StorageMemory  StorageKind = "memory"
	StorageMMap    StorageKind = "mmap"
	StorageLevelDB StorageKind = "leveldb"
)

// EngineConfig holds process-level wiring: worker pool sizing, logging,
// and the default storage kind for newly built indexes. Descended from
// the teacher's Config/ServerConfig/LoggingConfig shape, trimmed of the
// embedding/database fields that belonged to the RAG surface.
type EngineConfig struct {
	Workers      WorkerConfig `yaml:"workers"`
	Logging      LoggingConfig `yaml:"logging"`
	Storage      StorageKind  `yaml:"storage"`
	ShardCoordination *ShardCoordinationConfig `yaml:"shard_coordination,omitempty"`
}

// WorkerConfig sizes the two worker pools named in spec.md §5: the outer
// pool (over queries/items) and inner pool (over probed clusters/graph
// hops), plus an optional insert-rate cap.
type WorkerConfig struct {
	OuterPoolSize  int     `yaml:"outer_pool_size"`
	InnerPoolSize  int     `yaml:"inner_pool_size"`
	MaxInsertRate  float64 `yaml:"max_insert_rate"` // vectors/sec, 0 = unlimited
}

// LoggingConfig selects the level/sink pair consumed by pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// ShardCoordinationConfig configures the optional etcd-backed multi-node
// coordination layer in pkg/cluster.
type ShardCoordinationConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Endpoints []string `yaml:"endpoints"`
	Namespace string   `yaml:"namespace"`
}

// DefaultEngineConfig mirrors the teacher's setDefaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Workers: WorkerConfig{
			OuterPoolSize: 8,
			InnerPoolSize: 4,
		},
		Logging: LoggingConfig{Level: "info", Sink: "stdout"},
		Storage: StorageFloat32,
	}
}

// LoadEngineConfig reads an EngineConfig from a YAML file, applying
// defaults to unset fields the way the teacher's Load/setDefaults pair
// does, with the same directory-traversal guard on the path.
func LoadEngineConfig(configPath string) (*EngineConfig, error) {
	data, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyEngineDefaults(cfg)
	return cfg, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	if configPath == "" || strings.Contains(configPath, "..") || strings.ContainsAny(configPath, "/\\") {
		return nil, fmt.Errorf("config path must be a simple filename: %s", configPath)
	}
	// nolint:gosec // path validated above
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.Workers.OuterPoolSize == 0 {
		cfg.Workers.OuterPoolSize = 8
	}
	if cfg.Workers.InnerPoolSize == 0 {
		cfg.Workers.InnerPoolSize = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Sink == "" {
		cfg.Logging.Sink = "stdout"
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageFloat32
	}
}

// BuildParameters bundles build-time parameters for whichever index
// family is being constructed; exactly one of Vamana/IVF is populated.
type BuildParameters struct {
	Vamana *VamanaBuildParameters
	IVF    *IVFBuildParameters
}

// Validate checks the invariants spec.md §7 calls out explicitly
// (prune_to > max_degree is malformed).
func (b BuildParameters) Validate() error {
	if b.Vamana != nil {
		if b.Vamana.PruneTo > b.Vamana.MaxDegree {
			return fmt.Errorf("prune_to (%d) exceeds max_degree (%d)", b.Vamana.PruneTo, b.Vamana.MaxDegree)
		}
		if b.Vamana.MaxDegree <= 0 {
			return fmt.Errorf("max_degree must be positive, got %d", b.Vamana.MaxDegree)
		}
	}
	if b.IVF != nil && b.IVF.NumCentroids <= 0 {
		return fmt.Errorf("num_centroids must be positive, got %d", b.IVF.NumCentroids)
	}
	return nil
}
