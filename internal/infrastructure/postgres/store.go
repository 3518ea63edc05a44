package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	migrationsTable       = "checkout_schema_migrations"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

func (c *Credentials) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName,
	)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the checkout persistence boundary on PostgreSQL.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, cred *Credentials) (*Store, error) {
	db, err := sql.Open("postgres", cred.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db), nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunMigrations(dir string) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", dir), "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Addresses() domaddress.Repository { return &addressRepository{q: s.db} }

func (s *Store) Intents() dompayment.IntentRepository { return &intentRepository{q: s.db} }

func (s *Store) Orders() domorder.Repository { return &orderRepository{s: s, q: s.db} }

func (s *Store) Reconciliations() domrecon.Repository { return &reconciliationRepository{q: s.db} }

func (s *Store) Carts() domcart.Store { return &cartStore{q: s.db} }

func (s *Store) Inventory() dominventory.Ledger { return &inventoryLedger{q: s.db} }

func (s *Store) Sales() domsales.Ledger { return &salesLedger{q: s.db} }

func (s *Store) Catalog() domcatalog.Reader { return &catalogReader{q: s.db} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &txView{s: s, tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txView struct {
	s  *Store
	tx *sql.Tx
}

func (v *txView) Orders() domorder.Repository    { return &orderRepository{s: v.s, q: v.tx, tx: v.tx} }
func (v *txView) Carts() domcart.Store           { return &cartStore{q: v.tx, lock: true} }
func (v *txView) Inventory() dominventory.Ledger { return &inventoryLedger{q: v.tx} }
func (v *txView) Sales() domsales.Ledger         { return &salesLedger{q: v.tx} }
func (v *txView) Catalog() domcatalog.Reader     { return &catalogReader{q: v.tx} }

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

var _ checkout.Store = (*Store)(nil)
