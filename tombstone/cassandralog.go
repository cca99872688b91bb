package tombstone

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/lodc"
)

// cassandraLogConsistency matches the teacher's transaction log choice:
// tombstone replay only needs to be eventually complete, not
// linearizable, since recovery tolerates at-least-once reconciliation.
const cassandraLogConsistency = gocql.LocalOne

// CassandraLog is a cluster-wide tombstone log, used when the cache
// deployment spans multiple processes that must agree on deletions
// independent of any single node's local disk.
type CassandraLog struct {
	session  *gocql.Session
	keyspace string
	ctx      context.Context
}

// NewCassandraLog wraps an already-connected session. The table
// <keyspace>.tombstone must already exist with columns (hash bigint,
// seq bigint).
func NewCassandraLog(ctx context.Context, session *gocql.Session, keyspace string) *CassandraLog {
	return &CassandraLog{session: session, keyspace: keyspace, ctx: ctx}
}

// Append inserts one tombstone row.
func (l *CassandraLog) Append(hash uint64, seq lodc.Sequence) error {
	stmt := fmt.Sprintf("INSERT INTO %s.tombstone (hash, seq) VALUES (?, ?);", l.keyspace)
	return l.session.Query(stmt, int64(hash), int64(seq)).WithContext(l.ctx).Consistency(cassandraLogConsistency).Exec()
}

// Load reads the entire tombstone table. Recovery runs once at
// startup, so there is no point scanning incrementally.
func (l *CassandraLog) Load() ([]lodc.Tombstone, error) {
	stmt := fmt.Sprintf("SELECT hash, seq FROM %s.tombstone;", l.keyspace)
	iter := l.session.Query(stmt).WithContext(l.ctx).Consistency(cassandraLogConsistency).Iter()

	var out []lodc.Tombstone
	var hash, seq int64
	for iter.Scan(&hash, &seq) {
		out = append(out, lodc.Tombstone{Hash: uint64(hash), Seq: lodc.Sequence(seq)})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
