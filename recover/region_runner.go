package recover

import (
	"log/slog"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/scanner"
)

// RegionRunner drives one region's scan to produce the authoritative
// list of live EntryInfo for that region under a Mode policy.
type RegionRunner struct {
	factory scanner.Factory
	mode    Mode
}

// NewRegionRunner builds a RegionRunner bound to the given scanner Factory.
func NewRegionRunner(factory scanner.Factory, mode Mode) *RegionRunner {
	return &RegionRunner{factory: factory, mode: mode}
}

// Run scans region, stopping the moment a sequence inversion is
// observed — a monotonic write-time sequence cannot legitimately
// decrease, so a decrease means everything from that point on is
// either a torn write or garbage past the last durable record.
func (r *RegionRunner) Run(region lodc.Region, blobIndexSize int) ([]lodc.EntryInfo, error) {
	if r.mode == ModeNone {
		return nil, nil
	}

	s, err := r.factory.NewScanner(region, blobIndexSize)
	if err != nil {
		if r.mode == ModeStrict {
			return nil, lodc.Error{Code: lodc.ScanError, Err: err, UserData: region.ID()}
		}
		slog.Warn("failed to open region scanner, skipping region", "region", region.ID(), "err", err)
		return nil, nil
	}

	var recovered []lodc.EntryInfo
	var lastSeq lodc.Sequence

	for {
		batch, err := s.Next()
		if err != nil {
			if r.mode == ModeStrict {
				return nil, lodc.Error{Code: lodc.ScanError, Err: err, UserData: region.ID()}
			}
			slog.Warn("error recovering region, skipping further recovery for it",
				"region", region.ID(), "err", err)
			break
		}
		if batch.Done {
			break
		}

		inverted := false
		for _, info := range batch.Entries {
			if len(recovered) > 0 && info.Addr.Seq < lastSeq {
				inverted = true
				break
			}
			recovered = append(recovered, info)
			lastSeq = info.Addr.Seq
		}
		if inverted {
			break
		}
	}

	return recovered, nil
}
