package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, username, password_hash, balance, currency, quota_day, bonuses_used, version, created_at, updated_at`

// Postgres is the durable AccountStore. Every mutation runs in one
// transaction with SELECT ... FOR UPDATE row locks, so concurrent
// read-modify-write cycles on the same account serialize at the row.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Postgres) Create(ctx context.Context, a *Account) error {
	if a.Version == 0 {
		a.Version = 1
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO accounts (id, username, password_hash, balance, currency, quota_day, bonuses_used, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Username, a.PasswordHash, a.Balance, a.Currency, a.QuotaDay, a.BonusesUsed, a.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return err
	}
	if a.Balance != 0 {
		_, err = s.Pool.Exec(ctx, `
			INSERT INTO ledger_entries (id, account_id, type, amount) VALUES ($1,$2,$3,$4)
		`, NewID(), a.ID, "opening_credit", a.Balance)
	}
	return err
}

func (s *Postgres) Get(ctx context.Context, id string) (*Account, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Postgres) GetByUsername(ctx context.Context, username string) (*Account, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

func (s *Postgres) Mutate(ctx context.Context, id string, expectedVersion int64, entryType string, fn MutateFn) (*Account, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	a, err := lockAccount(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && a.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	prevBalance := a.Balance
	if err := fn(a); err != nil {
		return nil, err
	}
	if a.Balance < 0 {
		return nil, ErrInsufficientFunds
	}
	a.Version++
	if err := updateAccount(ctx, tx, a); err != nil {
		return nil, err
	}
	if delta := a.Balance - prevBalance; delta != 0 {
		if err := insertEntry(ctx, tx, id, entryType, delta); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Postgres) MutatePair(ctx context.Context, aID, bID string, entryType string, fn PairMutateFn) (*Account, *Account, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// Row locks in ascending ID order regardless of transfer direction,
	// so opposite transfers between the same pair cannot deadlock.
	firstID, secondID := aID, bID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	locked := make(map[string]*Account, 2)
	for _, id := range []string{firstID, secondID} {
		acct, err := lockAccount(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = acct
	}
	a, b := locked[aID], locked[bID]

	prevA, prevB := a.Balance, b.Balance
	if err := fn(a, b); err != nil {
		return nil, nil, err
	}
	if a.Balance < 0 || b.Balance < 0 {
		return nil, nil, ErrInsufficientFunds
	}
	a.Version++
	b.Version++
	for _, acct := range []*Account{a, b} {
		if err := updateAccount(ctx, tx, acct); err != nil {
			return nil, nil, err
		}
	}
	if delta := a.Balance - prevA; delta != 0 {
		if err := insertEntry(ctx, tx, aID, entryType, delta); err != nil {
			return nil, nil, err
		}
	}
	if delta := b.Balance - prevB; delta != 0 {
		if err := insertEntry(ctx, tx, bID, entryType, delta); err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (s *Postgres) TopBalances(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts ORDER BY balance DESC, id ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Postgres) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if accountID == "" {
		rows, err = s.Pool.Query(ctx, `
			SELECT id, account_id, type, amount, created_at FROM ledger_entries
			ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		rows, err = s.Pool.Query(ctx, `
			SELECT id, account_id, type, amount, created_at FROM ledger_entries
			WHERE account_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
		`, accountID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func lockAccount(ctx context.Context, tx pgx.Tx, id string) (*Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func updateAccount(ctx context.Context, tx pgx.Tx, a *Account) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $1, quota_day = $2, bonuses_used = $3, version = $4, updated_at = now()
		WHERE id = $5
	`, a.Balance, a.QuotaDay, a.BonusesUsed, a.Version, a.ID)
	return err
}

func insertEntry(ctx context.Context, tx pgx.Tx, accountID, entryType string, amount int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount) VALUES ($1,$2,$3,$4)
	`, NewID(), accountID, entryType, amount)
	return err
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Balance, &a.Currency, &a.QuotaDay, &a.BonusesUsed, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
