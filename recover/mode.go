// Package recover rebuilds the in-memory index after a restart by
// scanning every region and reconciling the result against the
// persisted tombstone log.
package recover

// Mode controls how a region's scanner errors are handled.
type Mode int

const (
	// ModeNone skips recovery entirely; every region is treated as clean.
	ModeNone Mode = iota
	// ModeQuiet logs a scanner error and keeps whatever was already
	// recovered for that region, rather than failing the whole run.
	ModeQuiet
	// ModeStrict propagates a scanner error up to the top-level runner,
	// aborting recovery for every region.
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeQuiet:
		return "quiet"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}
