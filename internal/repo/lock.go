package repo

import (
	"context"
	"fmt"
	"sync"
)

// AdvisoryLock — лидерство через pg_try_advisory_lock.
//
// Session-level lock привязан к соединению, поэтому держится
// выделенное соединение пула.
type AdvisoryLock struct {
	conn DBTX
	key  int64

	held bool
	mu   sync.Mutex
}

// NewAdvisoryLock создаёт lock с ключом key на соединении conn.
func NewAdvisoryLock(conn DBTX, key int64) *AdvisoryLock {
	return &AdvisoryLock{conn: conn, key: key}
}

// TryAcquire пытается стать лидером. Повторный вызов лидера возвращает true.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	var ok bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	l.held = ok
	return ok, nil
}

// Release отпускает lock, если он удерживается.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
