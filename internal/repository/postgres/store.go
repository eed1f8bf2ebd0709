package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"medorders/internal/domain"
	"medorders/internal/port"
)

// Store is the PostgreSQL-backed port.EntityStore.
type Store struct {
	*entityRepo
	db *sqlx.DB
}

var _ port.EntityStore = (*Store)(nil)

// NewStore creates a new PostgreSQL-backed EntityStore.
func NewStore(db *sqlx.DB) *Store {
	return &Store{entityRepo: &entityRepo{q: db}, db: db}
}

// WithTx runs fn in a transaction. The transaction commits only if fn returns
// nil; any error or panic rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(repo port.EntityRepository) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.WithTx begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&entityRepo{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.WithTx commit: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.getOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, offset, limit int) ([]domain.Order, int, error) {
	return s.listOrders(ctx, offset, limit)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
