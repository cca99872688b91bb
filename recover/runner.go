package recover

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/scanner"
)

// Config bundles the tunables the top-level runner needs.
type Config struct {
	// Concurrency bounds how many regions are scanned in parallel.
	Concurrency int
	Mode        Mode
	// BlobIndexSize is the scanner block-index stride passed through
	// to every region's scanner unchanged.
	BlobIndexSize int
}

// Runner reconstructs global indexer state from all regions plus the
// persisted tombstone log, classifies regions, advances the global
// sequence counter, and initializes the region manager.
type Runner struct {
	cfg     Config
	factory scanner.Factory
}

// NewRunner builds the top-level recovery orchestrator.
func NewRunner(cfg Config, factory scanner.Factory) *Runner {
	return &Runner{cfg: cfg, factory: factory}
}

type regionResult struct {
	id      lodc.RegionID
	entries []lodc.EntryInfo
	err     error
}

// versionEvent is either a recovered entry address or a tombstone for
// one hash at one sequence; the last one (by sequence) wins.
type versionEvent struct {
	seq       lodc.Sequence
	addr      lodc.EntryAddress
	tombstone bool
}

// Run recovers every region in regionIDs, concurrently bounded by
// cfg.Concurrency, reconciles the result with tombstones, and
// publishes to indexer, sequence, and regionMgr in the order required
// by §4.4: indexer first, then the sequence counter, then the region
// manager — so a writer admitted the moment recovery completes can
// never observe a clean region before it can also observe a sequence
// number that avoids colliding with recovered data.
//
// On any region failure (propagated when cfg.Mode is ModeStrict, or an
// infrastructure failure in any mode) Run returns a *lodc.AggregateError
// and leaves indexer, sequence, and regionMgr untouched.
func (r *Runner) Run(
	ctx context.Context,
	regionIDs []lodc.RegionID,
	regionMgr lodc.RegionManager,
	indexer lodc.Indexer,
	sequence *lodc.AtomicSequence,
	tombstones []lodc.Tombstone,
	runtime lodc.Runtime,
	metrics lodc.Metrics,
) error {
	start := time.Now()

	results, err := r.scanAll(ctx, regionIDs, regionMgr, runtime)
	if err != nil {
		return err
	}

	var cleanRegions, evictableRegions []lodc.RegionID
	indices := make(map[uint64][]versionEvent)
	var latestSeq lodc.Sequence

	for _, res := range results {
		if len(res.entries) == 0 {
			cleanRegions = append(cleanRegions, res.id)
		} else {
			evictableRegions = append(evictableRegions, res.id)
		}
		for _, info := range res.entries {
			if info.Addr.Seq > latestSeq {
				latestSeq = info.Addr.Seq
			}
			indices[info.Hash] = append(indices[info.Hash], versionEvent{seq: info.Addr.Seq, addr: info.Addr})
		}
	}
	for _, ts := range tombstones {
		if ts.Seq > latestSeq {
			latestSeq = ts.Seq
		}
		indices[ts.Hash] = append(indices[ts.Hash], versionEvent{seq: ts.Seq, tombstone: true})
	}

	resolved := make([]lodc.HashedEntryAddress, 0, len(indices))
	for hash, versions := range indices {
		sort.SliceStable(versions, func(i, j int) bool {
			if versions[i].seq == versions[j].seq {
				// Duplicate sequences are a data bug; prefer the
				// tombstone as the safer outcome for durability of
				// deletes rather than pick arbitrarily.
				return !versions[i].tombstone && versions[j].tombstone
			}
			return versions[i].seq < versions[j].seq
		})
		last := versions[len(versions)-1]
		if len(versions) > 1 && versions[len(versions)-2].seq == last.seq {
			slog.Warn("duplicate sequence for one hash during recovery, preferring the tombstone",
				"hash", hash, "seq", last.seq)
		}
		if last.tombstone {
			continue
		}
		resolved = append(resolved, lodc.HashedEntryAddress{Hash: hash, Addr: last.addr})
	}

	slog.Info("recovery reconciled regions",
		"evictable", len(evictableRegions),
		"clean", len(cleanRegions),
		"entries", len(resolved),
		"max_sequence", latestSeq,
	)

	indexer.InsertBatch(resolved)
	sequence.Store(latestSeq + 1)
	if err := regionMgr.Init(cleanRegions); err != nil {
		return lodc.Error{Code: lodc.IoError, Err: err}
	}

	elapsed := time.Since(start)
	slog.Info("recovery finished", "elapsed", elapsed)
	if metrics != nil {
		metrics.RecordRecoverDuration(elapsed.Seconds())
	}
	return nil
}

// scanAll fans recovery of every region out across runtime.User(),
// bounded to cfg.Concurrency simultaneous scans via lodc.TaskRunner, and
// aggregates every per-region failure into one error rather than
// returning on the first. In ModeStrict, the first region failure stops
// the runner from admitting any further scans (already-running ones
// still finish, since their results are discarded anyway), rather than
// letting every remaining region scan to completion for no purpose.
func (r *Runner) scanAll(ctx context.Context, regionIDs []lodc.RegionID, regionMgr lodc.RegionManager, runtime lodc.Runtime) ([]regionResult, error) {
	limit := r.cfg.Concurrency
	if limit <= 0 {
		limit = len(regionIDs)
	}
	tr := lodc.NewTaskRunner(ctx, limit)

	results := make([]regionResult, len(regionIDs))
	for i, id := range regionIDs {
		i, id := i, id
		tr.Go(func() error {
			if r.cfg.Mode == ModeStrict {
				if err := tr.Context().Err(); err != nil {
					// An earlier region already failed and stopped the
					// runner; this region is not scanned.
					results[i] = regionResult{id: id, err: err}
					return nil
				}
			}
			done := runtime.User().SpawnBlocking(func() error {
				region, err := regionMgr.Region(id)
				if err != nil {
					results[i] = regionResult{id: id, err: err}
					return err
				}
				runner := NewRegionRunner(r.factory, r.cfg.Mode)
				entries, err := runner.Run(region, r.cfg.BlobIndexSize)
				results[i] = regionResult{id: id, entries: entries, err: err}
				return err
			})
			err := <-done
			if err != nil {
				// Also records a recovered panic (lodc.JoinError), which
				// never reaches the results[i] assignments above.
				results[i] = regionResult{id: id, err: err}
				if r.cfg.Mode == ModeStrict {
					tr.Stop()
				}
			}
			// Every per-region failure is already captured in results[i];
			// returning nil here keeps the group running so the other
			// regions' results still land, and scanAll does its own error
			// aggregation below instead of relying on errgroup's
			// first-error short-circuit.
			return nil
		})
	}
	_ = tr.Wait()

	var errs []error
	successes := make([]regionResult, 0, len(results))
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
		} else {
			successes = append(successes, res)
		}
	}
	if len(errs) > 0 {
		return nil, &lodc.AggregateError{Errs: errs}
	}
	return successes, nil
}
