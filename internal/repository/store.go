package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/faithtrain/internal/service"
)

const (
	errDuplicateEntry = 1062
	errLockWait       = 1205
	errDeadlock       = 1213
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the MySQL implementation of service.Store.
type Store struct {
	db *sql.DB
	q  DBTX
	tx bool
}

var _ service.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Users() service.UserStore { return NewUserRepository(s.q) }
func (s *Store) Usage() service.UsageStore { return NewUsageRepository(s.q) }
func (s *Store) Streaks() service.StreakStore { return NewStreakRepository(s.q) }
func (s *Store) Ledger() service.LedgerStore { return NewLedgerRepository(s.q) }
func (s *Store) Boosters() service.BoosterStore { return NewBoosterRepository(s.q) }
func (s *Store) Rewards() service.RewardStore { return NewRewardRepository(s.q, s.tx) }
func (s *Store) Subscriptions() service.SubscriptionStore { return NewSubscriptionRepository(s.q) }
func (s *Store) Codes() service.CodeStore { return NewCodeRepository(s.q, s.tx) }
func (s *Store) Preferences() service.PreferenceStore { return NewPreferenceRepository(s.q) }

// InTx runs fn inside one transaction. Row locks taken by Lock calls are
// released on commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	if s.tx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

// classify wraps err with op, marking deadlocks, lock wait timeouts and
// broken connections as service.ErrTransient.
func classify(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errDeadlock || me.Number == errLockWait) {
		return fmt.Errorf("%s: %w: %w", op, service.ErrTransient, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%s: %w: %w", op, service.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

func affected(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func forUpdate(locking bool) string {
	if locking {
		return " FOR UPDATE"
	}
	return ""
}
