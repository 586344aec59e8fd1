package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/c14220110/clinic-queue/internal/store"
)

const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452

	queueNumberKey  = "uq_queue_number"
	recordNumberKey = "uq_records_number"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ store.Store = (*Store)(nil)

type Store struct {
	DB *sql.DB
	// MaxAttempts bounds WithTx re-runs on deadlocks and queue number collisions.
	MaxAttempts int
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, MaxAttempts: 3}
}

func (s *Store) View(ctx context.Context, fn func(q store.Queries) error) error {
	return fn(&queries{db: s.DB})
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = s.runTx(ctx, fn)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(q store.Queries) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&queries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// retryable reports conflicts that a fresh transaction can resolve: deadlocks,
// lock wait timeouts and collisions on the queue or record number unique keys.
func retryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case errDeadlock, errLockWaitTimeout:
		return true
	case errDuplicateEntry:
		return strings.Contains(me.Message, queueNumberKey) || strings.Contains(me.Message, recordNumberKey)
	}
	return false
}

// translate maps driver errors onto the store sentinels while keeping the
// original error in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDuplicateEntry:
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		case errNoReferencedRow:
			return fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}
	}
	return err
}
