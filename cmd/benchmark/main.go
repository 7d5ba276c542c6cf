// Command benchmark times insert and search against a freshly built
// index, grounded on the teacher's cmd/benchmark/main.go flag/report
// shape but retargeted from RAG/embedding mocks onto the real
// Flat/Vamana/IVF engine.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engine"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/metrics"
)

type report struct {
	Kind           string        `json:"kind"`
	Dimension      int           `json:"dimension"`
	VectorCount    int           `json:"vector_count"`
	QueryCount     int           `json:"query_count"`
	K              int           `json:"k"`
	BuildDuration  time.Duration `json:"build_duration_ns"`
	InsertRate     float64       `json:"insert_vectors_per_sec"`
	SearchDuration time.Duration `json:"search_duration_ns"`
	SearchRate     float64       `json:"search_queries_per_sec"`
}

func main() {
	var (
		kindFlag  = flag.String("kind", "vamana", "index kind: flat, vamana, or ivf")
		dim       = flag.Int("dim", 128, "vector dimension")
		count     = flag.Int("count", 10000, "number of vectors to insert")
		queries   = flag.Int("queries", 200, "number of search queries to run")
		k         = flag.Int("k", 10, "neighbors per query")
		seed      = flag.Int64("seed", 1, "random seed for generated vectors")
		outputFile = flag.String("output", "", "write the JSON report here instead of stdout")
	)
	flag.Parse()

	kind, err := parseKind(*kindFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rep, err := run(kind, *dim, *count, *queries, *k, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		enc = json.NewEncoder(f)
	}
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding report: %v\n", err)
		os.Exit(1)
	}
}

func parseKind(s string) (engine.Kind, error) {
	switch s {
	case "flat":
		return engine.KindFlat, nil
	case "vamana":
		return engine.KindVamanaDynamic, nil
	case "ivf":
		return engine.KindIVFDynamic, nil
	default:
		return 0, fmt.Errorf("unknown index kind %q", s)
	}
}

func randomVectors(n, dim int, rng *rand.Rand) []core.Vector {
	vecs := make([]core.Vector, n)
	for i := range vecs {
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = rng.Float32()
		}
		vecs[i] = core.Vector{ID: core.ExternalID(i + 1), Embedding: emb}
	}
	return vecs
}

func run(kind engine.Kind, dim, count, queryCount, k int, seed int64) (*report, error) {
	rng := rand.New(rand.NewSource(seed))
	vecs := randomVectors(count, dim, rng)

	buildStart := time.Now()
	idx, err := engine.Build(kind, engine.BuildOptions{
		Dim:         dim,
		Metric:      distance.L2,
		StorageKind: "memory",
		Workers:     config.WorkerConfig{OuterPoolSize: 8, InnerPoolSize: 4},
		Seeds:       vecs,
		Metrics:     metrics.New(logging.Get()),
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	buildDuration := time.Since(buildStart)

	queryVecs := make([][]float32, queryCount)
	for i := range queryVecs {
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = rng.Float32()
		}
		queryVecs[i] = emb
	}

	searchStart := time.Now()
	if _, err := idx.Search(queryVecs, k, nil); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	searchDuration := time.Since(searchStart)

	return &report{
		Kind:           kind.String(),
		Dimension:      dim,
		VectorCount:    idx.Len(),
		QueryCount:     queryCount,
		K:              k,
		BuildDuration:  buildDuration,
		InsertRate:     float64(count) / buildDuration.Seconds(),
		SearchDuration: searchDuration,
		SearchRate:     float64(queryCount) / searchDuration.Seconds(),
	}, nil
}
