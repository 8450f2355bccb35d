package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jmoiron/sqlx"
)

// AdvisoryLock is a session-level Postgres advisory lock. It is held on one
// pooled connection from TryAcquire until release, so it also covers work done
// outside any transaction.
type AdvisoryLock struct {
	db  *sqlx.DB
	key int64
}

// NewAdvisoryLock derives the lock key from name. Every process using the same
// name and database contends for the same lock.
func NewAdvisoryLock(db *sqlx.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &AdvisoryLock{db: db, key: int64(h.Sum64())}
}

func (l *AdvisoryLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.GetContext(ctx, &acquired, "SELECT pg_try_advisory_lock($1)", l.key); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		// The pass context may already be done; unlocking must still happen.
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.key)
		conn.Close()
	}
	return release, true, nil
}
