// Command recoverd wires the recovery core's reference collaborators
// together against real on-disk regions and runs one recovery pass,
// the way an operator would invoke it right after process restart and
// before admitting writers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/indexer"
	"github.com/sharedcode/lodc/io"
	"github.com/sharedcode/lodc/metrics"
	"github.com/sharedcode/lodc/recover"
	"github.com/sharedcode/lodc/regionmgr"
	"github.com/sharedcode/lodc/scanner"
	"github.com/sharedcode/lodc/tombstone"
)

func main() {
	lodc.ConfigureLogging()

	var (
		dataDir       = flag.String("data-dir", "./data", "directory holding region partition files")
		regionCount   = flag.Int("regions", 4, "number of regions to recover")
		regionSize    = flag.Int64("region-size", 64<<20, "bytes per region")
		concurrency   = flag.Int("concurrency", 4, "max parallel region scans")
		mode          = flag.String("mode", "strict", "recover mode: none|quiet|strict")
		blobIndexSize = flag.Int("blob-index-size", 64<<10, "scanner read stride in bytes")
		metricsAddr   = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	)
	flag.Parse()

	runID := uuid.New()
	slog.Info("starting recovery", "run_id", runID, "data_dir", *dataDir, "regions", *regionCount)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "err", err)
		os.Exit(1)
	}

	device := io.NewFileDevice(*dataDir)
	defer device.Close()

	runtime := io.NewDefaultRuntime(0, 0, 0)
	regionMgr := regionmgr.NewManager(device, *regionSize)

	tsLog, err := tombstone.NewFileLog(*dataDir + "/tombstones.log")
	if err != nil {
		slog.Error("failed to open tombstone log", "err", err)
		os.Exit(1)
	}
	defer tsLog.Close()
	tombstones, err := tsLog.Load()
	if err != nil {
		slog.Error("failed to load tombstone log", "err", err)
		os.Exit(1)
	}

	idx := indexer.NewMemIndexer()
	var sequence lodc.AtomicSequence
	rec := metrics.NewRecorder()

	go func() {
		server := metrics.NewServer(rec)
		if err := server.Run(*metricsAddr); err != nil {
			slog.Warn("metrics server stopped", "err", err)
		}
	}()

	regionIDs := make([]lodc.RegionID, *regionCount)
	for i := range regionIDs {
		regionIDs[i] = lodc.RegionID(i)
	}

	runner := recover.NewRunner(recover.Config{
		Concurrency:   *concurrency,
		Mode:          parseMode(*mode),
		BlobIndexSize: *blobIndexSize,
	}, scanner.NewFileScannerFactory())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := runner.Run(ctx, regionIDs, regionMgr, idx, &sequence, tombstones, runtime, rec); err != nil {
		slog.Error("recovery failed", "run_id", runID, "err", err)
		os.Exit(1)
	}

	slog.Info("recovery complete", "run_id", runID,
		"entries", idx.Len(), "clean_regions", regionMgr.CleanCount(), "next_sequence", sequence.Load())
}

func parseMode(s string) recover.Mode {
	switch s {
	case "none":
		return recover.ModeNone
	case "quiet":
		return recover.ModeQuiet
	default:
		return recover.ModeStrict
	}
}
