package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/lib/pq"
)

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic. Row locks taken inside fn are held until commit.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Postgres error classes/codes that justify a retry.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqConnectionClass      = "08"
)

// IsTransient reports whether err is a store error a fresh transaction may
// survive: serialization conflicts, deadlocks, dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if code == pqSerializationFailure || code == pqDeadlockDetected {
			return true
		}
		if len(code) >= 2 && code[:2] == pqConnectionClass {
			return true
		}
	}
	return false
}

// WithRetry runs fn in a transaction, retrying transient failures up to
// maxRetries with jittered exponential backoff. Every attempt re-reads live
// state; fn must be idempotent. Cancellation is honored between attempts
// only: a transaction never commits partially.
func (d *DB) WithRetry(ctx context.Context, maxRetries int, fn func(tx *sql.Tx) error) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		err = d.WithTx(ctx, fn)
		if err == nil || !IsTransient(err) || attempt >= maxRetries {
			return err
		}
		delay := backoff + time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}
