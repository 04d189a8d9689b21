// Command bogart is the unitig-construction engine: it builds the Best
// Overlap Graph and Chunk Graph from a read store and overlap store, runs
// the seed/populate/bubble/break/join/split pipeline, and persists the
// resulting tig layouts to a versioned tig store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/chunkgraph"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/pipeline"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigstore"
)

type cliFlags struct {
	readStorePath    string
	overlapStorePath string
	tigStoreVersion  int
	outputPrefix     string

	graphErate float64
	graphELim  uint

	mergeErate float64
	mergeELim  uint

	enableRepeatReconstruction bool
	enableMateExtension        bool
	shatterRepeats             bool
	disallowSingletonPromotion bool

	cacheGigabytes int
	maxPerRead     int
	createTigStore bool
	saveCheckpoint bool

	diagFlag  string
	diagLevel int

	gzipReports bool
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("bogart", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.readStorePath, "S", "", "read store path (required)")
	fs.StringVar(&f.overlapStorePath, "O", "", "overlap store path (required)")
	fs.IntVar(&f.tigStoreVersion, "T", 1, "tig store version to write")
	fs.StringVar(&f.outputPrefix, "o", "", "output prefix (required; also the tig store directory)")

	fs.Float64Var(&f.graphErate, "eg", 0.05, "graph fractional error rate ceiling")
	fs.UintVar(&f.graphELim, "Eg", 0, "graph absolute error-count ceiling (0 = unused)")
	fs.Float64Var(&f.mergeErate, "em", 0.05, "merge fractional error rate ceiling")
	fs.UintVar(&f.mergeELim, "Em", 0, "merge absolute error-count ceiling (0 = unused)")

	fs.BoolVar(&f.enableRepeatReconstruction, "R", false, "enable repeat reconstruction")
	fs.BoolVar(&f.enableMateExtension, "E", false, "enable mate extension")
	fs.BoolVar(&f.shatterRepeats, "SR", false, "shatter repeats")
	fs.BoolVar(&f.disallowSingletonPromotion, "DP", false, "disallow singleton promotion")

	fs.IntVar(&f.cacheGigabytes, "M", 0, "overlap cache memory budget in GiB (0 = unbounded)")
	fs.IntVar(&f.maxPerRead, "N", 0, "max overlaps cached per read (0 = unbounded)")
	fs.BoolVar(&f.createTigStore, "create", false, "create a new tig store rather than extending one")
	fs.BoolVar(&f.saveCheckpoint, "save", false, "save the best overlap graph checkpoint for reuse")

	fs.StringVar(&f.diagFlag, "D", "", "per-component diagnostic toggle name")
	fs.IntVar(&f.diagLevel, "d", 0, "diagnostic verbosity level")

	fs.BoolVar(&f.gzipReports, "gzip-reports", false, "gzip-compress the best-edge and partitioning text reports")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.readStorePath == "" || f.overlapStorePath == "" || f.outputPrefix == "" {
		return f, fmt.Errorf("bogart: -S, -O, and -o are required")
	}
	return f, nil
}

func run(f cliFlags) error {
	ctx := vcontext.Background()

	reads, err := loadReadStore(ctx, f.readStorePath)
	if err != nil {
		return err
	}
	defer reads.Close() // nolint: errcheck
	ovStore, err := loadOverlapStore(ctx, f.overlapStorePath, reads.NumReads())
	if err != nil {
		return err
	}

	log.Printf("bogart: loaded %d reads", reads.NumReads())

	cache := overlapstore.NewCache(ovStore, f.graphErate, nil)
	if f.maxPerRead > 0 {
		log.Printf("bogart: -N %d requested; per-read overlap capping is not yet wired into overlapstore.Cache, proceeding unbounded", f.maxPerRead)
	}
	if f.cacheGigabytes > 0 {
		log.Printf("bogart: -M %d GiB requested; the in-memory cache is not budgeted, proceeding unbounded", f.cacheGigabytes)
	}

	bogOpts := bog.Options{
		GraphErate:               f.graphErate,
		GraphErrorLimit:          uint32(f.graphELim),
		EnableSpurRemoval:        true,
		EnableLopsidedRemoval:    true,
		EnableCoverageGapRemoval: true,
	}
	g, err := buildOrLoadGraph(ctx, f, reads, cache, bogOpts)
	if err != nil {
		return err
	}
	log.Printf("bogart: best overlap graph built, %d reads failed to resolve any edge", g.FailedReads())

	cg := chunkgraph.Build(g)
	log.Printf("bogart: chunk graph built, %d seeds", cg.Len())

	popts := pipeline.DefaultOptions()
	popts.DisallowSingletonPromotion = f.disallowSingletonPromotion
	popts.MergeErate = f.mergeErate
	if f.enableRepeatReconstruction {
		log.Printf("bogart: -R (repeat reconstruction) requested; not implemented in this build, proceeding without it")
	}
	if f.enableMateExtension {
		log.Printf("bogart: -E (mate extension) requested; not implemented in this build, proceeding without it")
	}
	if f.shatterRepeats {
		log.Printf("bogart: -SR (shatter repeats) requested; not implemented in this build, proceeding without it")
	}

	pc := pipeline.NewContext(reads, cache, g, cg, popts)
	pc.Run()

	if err := persist(ctx, f, reads, pc); err != nil {
		return err
	}

	if pc.Stats.PlacementFailures > 0 {
		log.Printf("bogart: completed with %d placement failures; see stats above", pc.Stats.PlacementFailures)
	}
	return nil
}

// buildOrLoadGraph resurrects a best-overlap-graph checkpoint saved by a
// prior run with the same graph parameters, or builds the graph from the
// overlap cache. A checkpoint built with different parameters is
// discarded and the graph recomputed; with -save, the freshly built graph
// is checkpointed for the next run.
func buildOrLoadGraph(ctx context.Context, f cliFlags, reads *readinfo.Table, cache *overlapstore.Cache, opts bog.Options) (*bog.Graph, error) {
	ckpt := f.outputPrefix + ".best.bog"
	params := bog.Params{GraphErate: f.graphErate, GraphErrorLimit: uint32(f.graphELim)}

	g, err := bog.Load(ctx, ckpt, params)
	if err == nil {
		log.Printf("bogart: loaded best overlap graph checkpoint from %s", ckpt)
		return g, nil
	}
	if bog.IsCheckpointMismatch(err) {
		log.Printf("bogart: best overlap graph checkpoint has stale parameters, recomputing")
	}

	g, err = bog.Build(reads, cache, opts)
	if err != nil {
		return nil, fmt.Errorf("bogart: building best overlap graph: %w", err)
	}
	if f.saveCheckpoint {
		if err := g.Save(ctx, ckpt, params); err != nil {
			return nil, fmt.Errorf("bogart: saving best overlap graph checkpoint: %w", err)
		}
		log.Printf("bogart: saved best overlap graph checkpoint to %s", ckpt)
	}
	return g, nil
}

// persist writes the tig store, the best-edge report, and the
// partitioning file under f.outputPrefix.
func persist(ctx context.Context, f cliFlags, reads *readinfo.Table, pc *pipeline.Context) error {
	mode := tigstore.ModeWrite
	if f.createTigStore {
		mode = tigstore.ModeCreate
	}
	store, err := tigstore.Open(ctx, f.outputPrefix, mode)
	if err != nil && mode == tigstore.ModeWrite {
		// First run against an empty output directory: fall back to create.
		store, err = tigstore.Open(ctx, f.outputPrefix, tigstore.ModeCreate)
	}
	if err != nil {
		return fmt.Errorf("bogart: opening tig store: %w", err)
	}
	var putErr error
	pc.Tigs.Each(func(t *tig.Tig) {
		if putErr == nil {
			putErr = store.Put(t)
		}
	})
	if putErr != nil {
		return fmt.Errorf("bogart: writing tig store: %w", putErr)
	}
	if store.Version() != uint32(f.tigStoreVersion) {
		log.Printf("bogart: -T %d requested, writing to version %d instead (next available)", f.tigStoreVersion, store.Version())
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("bogart: closing tig store: %w", err)
	}

	bestEdgePath := f.outputPrefix + ".bestedges"
	containedPath := f.outputPrefix + ".bestedges.contained"
	singletonPath := f.outputPrefix + ".bestedges.singleton"
	if err := writeReportFiles(ctx, bestEdgePath, containedPath, singletonPath, reads, pc, f.gzipReports); err != nil {
		return err
	}

	partitionPath := f.outputPrefix + ".partitions"
	if err := writePartitionFile(ctx, partitionPath, pc, f.gzipReports); err != nil {
		return err
	}
	return nil
}

func main() {
	cleanup := grail.Init()
	defer cleanup()

	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cleanup()
		os.Exit(1)
	}

	if err := run(f); err != nil {
		log.Error.Printf("%v", err)
		cleanup()
		os.Exit(1)
	}
}
