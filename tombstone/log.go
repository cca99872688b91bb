// Package tombstone loads the durable deletion log the recovery core
// reconciles against recovered region entries. Writing/appending to
// the log lives outside the core's scope; this package only needs to
// load the full set once before RecoverRunner.Run is invoked.
package tombstone

import "github.com/sharedcode/lodc"

// Log loads every tombstone persisted before recovery begins.
type Log interface {
	Load() ([]lodc.Tombstone, error)
}
