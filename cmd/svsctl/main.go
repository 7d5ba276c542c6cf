// Command svsctl is a command-line front end over pkg/engine: build,
// insert, search, delete, consolidate, compact, save, and load index
// archives from the shell. Grounded on the teacher's cmd/cli/main.go
// cobra wiring, retargeted from the HNSW/IVF demo commands onto the
// Flat/Vamana/IVF facade and real file-backed archives instead of an
// in-process-only demo.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engine"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/metrics"
	"github.com/svsgo/engine/pkg/storage"
)

// jsonVector is the on-disk shape for --vectors files: a plain JSON
// array, one entry per vector.
type jsonVector struct {
	ID        uint64    `json:"id"`
	Embedding []float32 `json:"embedding"`
}

func loadVectorsFile(path string) ([]core.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vectors file: %w", err)
	}
	var raw []jsonVector
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing vectors file: %w", err)
	}
	vecs := make([]core.Vector, len(raw))
	for i, v := range raw {
		vecs[i] = core.Vector{ID: core.ExternalID(v.ID), Embedding: v.Embedding}
	}
	return vecs, nil
}

func parseKind(s string) (engine.Kind, error) {
	switch strings.ToLower(s) {
	case "flat":
		return engine.KindFlat, nil
	case "vamana", "vamana_dynamic":
		return engine.KindVamanaDynamic, nil
	case "ivf", "ivf_dynamic":
		return engine.KindIVFDynamic, nil
	default:
		return 0, fmt.Errorf("unknown index kind %q (want flat, vamana, or ivf)", s)
	}
}

func parseMetric(s string) (distance.Metric, error) {
	switch strings.ToLower(s) {
	case "l2", "":
		return distance.L2, nil
	case "ip", "inner_product":
		return distance.InnerProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric %q (want l2 or ip)", s)
	}
}

func parseQuery(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing query component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// root holds the flags shared by every subcommand that opens or
// produces an archive file.
type root struct {
	file    string
	kind    string
	metric  string
	storage string
	dim     int
}

func (r *root) openOptions() engine.BuildOptions {
	return engine.BuildOptions{
		Workers: config.WorkerConfig{OuterPoolSize: 8, InnerPoolSize: 4},
		Metrics: metrics.New(logging.Get()),
	}
}

func (r *root) load() (*engine.Index, error) {
	kind, err := parseKind(r.kind)
	if err != nil {
		return nil, err
	}
	m, err := parseMetric(r.metric)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(r.file)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	return engine.Load(f, kind, m, storage.Kind(r.storage), r.openOptions())
}

func (r *root) save(idx *engine.Index) error {
	f, err := os.Create(r.file)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()
	return idx.Save(f)
}

func main() {
	r := &root{}

	rootCmd := &cobra.Command{
		Use:   "svsctl",
		Short: "svsctl drives an approximate-nearest-neighbor index archive from the shell",
		Long: `svsctl builds, searches, and mutates a single ANN index archive file.

Every subcommand except build opens the --file archive, applies its
operation, and (for mutating commands) writes the archive back.`,
	}
	rootCmd.PersistentFlags().StringVar(&r.file, "file", "", "index archive path (required)")
	rootCmd.PersistentFlags().StringVar(&r.kind, "kind", "vamana", "index kind: flat, vamana, or ivf")
	rootCmd.PersistentFlags().StringVar(&r.metric, "metric", "l2", "distance metric: l2 or ip")
	rootCmd.PersistentFlags().StringVar(&r.storage, "storage", "float32", "storage kind")
	rootCmd.MarkPersistentFlagRequired("file")

	buildCmd := &cobra.Command{
		Use:   "build [vectors-file]",
		Short: "build a new index archive, optionally seeded from a vectors file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seeds []core.Vector
			if len(args) == 1 {
				v, err := loadVectorsFile(args[0])
				if err != nil {
					return err
				}
				seeds = v
			}

			kind, err := parseKind(r.kind)
			if err != nil {
				return err
			}
			m, err := parseMetric(r.metric)
			if err != nil {
				return err
			}
			maxDegree, _ := cmd.Flags().GetInt("max-degree")
			alpha, _ := cmd.Flags().GetFloat64("alpha")
			numCentroids, _ := cmd.Flags().GetInt("num-centroids")

			opts := r.openOptions()
			opts.Dim = r.dim
			opts.Metric = m
			opts.StorageKind = storage.Kind(r.storage)
			opts.Seeds = seeds
			opts.VamanaBuild = config.VamanaBuildParameters{MaxDegree: maxDegree, Alpha: alpha}
			opts.IVFBuild = config.IVFBuildParameters{NumCentroids: numCentroids}

			idx, err := engine.Build(kind, opts)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			if len(seeds) == 0 {
				fmt.Printf("built empty %s index (dim=%d); no archive written until it holds at least one vector\n", kind, r.dim)
				return nil
			}
			if err := r.save(idx); err != nil {
				return err
			}
			fmt.Printf("built %s index with %d vectors -> %s\n", kind, idx.Len(), r.file)
			return nil
		},
	}
	buildCmd.Flags().IntVar(&r.dim, "dim", 128, "vector dimension")
	buildCmd.Flags().Int("max-degree", 0, "vamana: max graph degree (0 = engine default)")
	buildCmd.Flags().Float64("alpha", 0, "vamana: prune alpha (0 = engine default)")
	buildCmd.Flags().Int("num-centroids", 0, "ivf: number of centroids (0 = engine default)")

	insertCmd := &cobra.Command{
		Use:   "insert <vectors-file>",
		Short: "insert vectors from a JSON file into an existing archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vecs, err := loadVectorsFile(args[0])
			if err != nil {
				return err
			}
			idx, err := r.load()
			if err != nil {
				return err
			}
			start := time.Now()
			if err := idx.Add(vecs); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			if err := r.save(idx); err != nil {
				return err
			}
			fmt.Printf("inserted %d vectors in %s; index now holds %d\n", len(vecs), time.Since(start), idx.Len())
			return nil
		},
	}

	var searchK int
	var searchQuery string
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "k-NN search a query vector against an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseQuery(searchQuery)
			if err != nil {
				return err
			}
			idx, err := r.load()
			if err != nil {
				return err
			}
			start := time.Now()
			results, err := idx.Search([][]float32{query}, searchK, nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			fmt.Printf("search completed in %s, %d results:\n", time.Since(start), len(results[0]))
			for i, n := range results[0] {
				fmt.Printf("  %d. id=%d distance=%.6f\n", i+1, n.ID, n.Distance)
			}
			return nil
		},
	}
	searchCmd.Flags().IntVar(&searchK, "k", 10, "number of neighbors to return")
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "comma-separated query vector, e.g. \"0.1,0.2,0.3\"")
	searchCmd.MarkFlagRequired("query")

	deleteCmd := &cobra.Command{
		Use:   "delete <id> [id...]",
		Short: "remove one or more external ids from an archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := r.load()
			if err != nil {
				return err
			}
			for _, a := range args {
				n, err := strconv.ParseUint(a, 10, 64)
				if err != nil {
					return fmt.Errorf("parsing id %q: %w", a, err)
				}
				if err := idx.Remove(core.ExternalID(n)); err != nil {
					return fmt.Errorf("delete %d: %w", n, err)
				}
			}
			if err := r.save(idx); err != nil {
				return err
			}
			fmt.Printf("removed %d ids; index now holds %d\n", len(args), idx.Len())
			return nil
		},
	}

	consolidateCmd := &cobra.Command{
		Use:   "consolidate",
		Short: "repair back-edges into soft-deleted vamana nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := r.load()
			if err != nil {
				return err
			}
			if err := idx.Consolidate(config.DefaultVamanaBuildParameters(config.VamanaBuildParameters{})); err != nil {
				return fmt.Errorf("consolidate: %w", err)
			}
			if err := r.save(idx); err != nil {
				return err
			}
			fmt.Println("consolidate complete")
			return nil
		},
	}

	compactCmd := &cobra.Command{
		Use:   "compact",
		Short: "renumber internal indices to remove deletion holes",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := r.load()
			if err != nil {
				return err
			}
			if err := idx.Compact(); err != nil {
				return fmt.Errorf("compact: %w", err)
			}
			if err := r.save(idx); err != nil {
				return err
			}
			fmt.Printf("compact complete; index holds %d vectors\n", idx.Len())
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print archive statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := r.load()
			if err != nil {
				return err
			}
			fmt.Printf("kind:  %s\n", idx.Kind())
			fmt.Printf("count: %d\n", idx.Len())
			return nil
		},
	}

	rootCmd.AddCommand(buildCmd, insertCmd, searchCmd, deleteCmd, consolidateCmd, compactCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
