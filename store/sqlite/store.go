// Package sqlite implements store.Store on SQLite through modernc.org/sqlite.
//
// Amounts are stored as decimal TEXT, times as Unix milliseconds and
// addresses as lower-case hex, so text ordering matches byte ordering.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	crowdsalestore "github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/types"
)

// compile-time interface check
var _ crowdsalestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database file at path. Migrate must be called before use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("crowdsale/sqlite: storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: open: %w", err)
	}
	// One connection: a transaction and every call joined to it share it.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("crowdsale/sqlite: ping: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn in a database transaction carried by ctx.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return crowdsale.ErrStoreClosed
		}
		return fmt.Errorf("crowdsale/sqlite: begin: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("crowdsale/sqlite: commit: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Sale State ====================

func (s *Store) GetSaleState(ctx context.Context) (*sale.State, error) {
	var (
		st               sale.State
		initialized      bool
		owner, treasury  string
		layout           string
		created, updated int64
	)
	err := s.q(ctx).QueryRowContext(ctx, `
SELECT initialized, owner, treasury, current_round_id, balance,
       implementation, layout, created_at, updated_at
FROM crowdsale_sale WHERE id = 1`).Scan(
		&initialized, &owner, &treasury, &st.CurrentRoundID, &st.Balance,
		&st.Implementation, &layout, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &sale.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: get sale state: %w", err)
	}

	st.Initialized = initialized
	st.Owner, st.Treasury = fromAddress(owner), fromAddress(treasury)
	if err := json.Unmarshal([]byte(layout), &st.Layout); err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: decode layout: %w", err)
	}
	st.CreatedAt, st.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &st, nil
}

func (s *Store) PutSaleState(ctx context.Context, st *sale.State) error {
	layout, err := json.Marshal(nonNil(st.Layout))
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: encode layout: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
INSERT INTO crowdsale_sale (id, initialized, owner, treasury, current_round_id, balance,
                            implementation, layout, created_at, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    initialized = excluded.initialized,
    owner = excluded.owner,
    treasury = excluded.treasury,
    current_round_id = excluded.current_round_id,
    balance = excluded.balance,
    implementation = excluded.implementation,
    layout = excluded.layout,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`,
		st.Initialized, toAddress(st.Owner), toAddress(st.Treasury), st.CurrentRoundID, st.Balance,
		st.Implementation, string(layout), toMillis(st.CreatedAt), toMillis(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: put sale state: %w", err)
	}
	return nil
}

// ==================== Rounds ====================

const roundColumns = `id, rate, soft_cap, end_time, total_raised, finalized, successful,
       funds_withdrawn, title, description, created_at, updated_at`

func (s *Store) CreateRound(ctx context.Context, r *round.Round) error {
	_, err := s.q(ctx).ExecContext(ctx, `
INSERT INTO crowdsale_rounds (`+roundColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Rate, r.SoftCap, toMillis(r.EndTime), r.TotalRaised, r.Finalized, r.Successful,
		r.FundsWithdrawn, r.Title, r.Description, toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("crowdsale/sqlite: create round %d: already exists", r.ID)
	}
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: create round: %w", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID uint64) (*round.Round, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+roundColumns+` FROM crowdsale_rounds WHERE id = ?`, roundID)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: get round: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r *round.Round) error {
	res, err := s.q(ctx).ExecContext(ctx, `
UPDATE crowdsale_rounds SET
    rate = ?, soft_cap = ?, end_time = ?, total_raised = ?, finalized = ?, successful = ?,
    funds_withdrawn = ?, title = ?, description = ?, updated_at = ?
WHERE id = ?`,
		r.Rate, r.SoftCap, toMillis(r.EndTime), r.TotalRaised, r.Finalized, r.Successful,
		r.FundsWithdrawn, r.Title, r.Description, toMillis(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: update round: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, r.ID)
	}
	return nil
}

func (s *Store) ListRounds(ctx context.Context) ([]*round.Round, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+roundColumns+` FROM crowdsale_rounds ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: list rounds: %w", err)
	}
	defer rows.Close()

	var out []*round.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("crowdsale/sqlite: scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(sc scanner) (*round.Round, error) {
	var (
		r                     round.Round
		end, created, updated int64
	)
	err := sc.Scan(
		&r.ID, &r.Rate, &r.SoftCap, &end, &r.TotalRaised, &r.Finalized, &r.Successful,
		&r.FundsWithdrawn, &r.Title, &r.Description, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	r.EndTime = fromMillis(end)
	r.CreatedAt, r.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &r, nil
}

// ==================== Contributions ====================

const contributionColumns = `round_id, contributor, contribution_wei, entitlement_tokens,
       claimed_or_refunded, created_at, updated_at`

func (s *Store) GetContribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
SELECT `+contributionColumns+` FROM crowdsale_contributions
WHERE round_id = ? AND contributor = ?`, roundID, toAddress(addr))
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, crowdsale.ErrContributionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: get contribution: %w", err)
	}
	return c, nil
}

func (s *Store) PutContribution(ctx context.Context, c *contribution.Contribution) error {
	_, err := s.q(ctx).ExecContext(ctx, `
INSERT INTO crowdsale_contributions (`+contributionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (round_id, contributor) DO UPDATE SET
    contribution_wei = excluded.contribution_wei,
    entitlement_tokens = excluded.entitlement_tokens,
    claimed_or_refunded = excluded.claimed_or_refunded,
    updated_at = excluded.updated_at`,
		c.RoundID, toAddress(c.Contributor), c.ContributionWei, c.EntitlementTokens,
		c.ClaimedOrRefunded, toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: put contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
SELECT `+contributionColumns+` FROM crowdsale_contributions
WHERE round_id = ? ORDER BY contributor ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: list contributions: %w", err)
	}
	defer rows.Close()

	var out []*contribution.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("crowdsale/sqlite: scan contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContribution(sc scanner) (*contribution.Contribution, error) {
	var (
		c                contribution.Contribution
		addr             string
		created, updated int64
	)
	err := sc.Scan(&c.RoundID, &addr, &c.ContributionWei, &c.EntitlementTokens,
		&c.ClaimedOrRefunded, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Contributor = fromAddress(addr)
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &c, nil
}

// ==================== Event Log ====================

const eventColumns = `seq, id, kind, round_id, account, amount, tokens, rate, soft_cap,
       end_time, title, description, successful, version, prev_version, at`

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	q := s.q(ctx)
	var next uint64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM crowdsale_events`).Scan(&next); err != nil {
		return fmt.Errorf("crowdsale/sqlite: next event seq: %w", err)
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO crowdsale_events (`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		next, e.ID.String(), string(e.Kind), e.RoundID, toAddress(e.Account), e.Amount, e.Tokens,
		e.Rate, e.SoftCap, toMillis(e.EndTime), e.Title, e.Description, e.Successful,
		e.Version, e.PrevVersion, toMillis(e.At),
	)
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: append event: %w", err)
	}
	e.Seq = next
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM crowdsale_events WHERE seq > ?`
	args := []any{opts.AfterSeq}
	if opts.RoundID != 0 {
		query += ` AND round_id = ?`
		args = append(args, opts.RoundID)
	}
	if len(opts.Kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(", ?", len(opts.Kinds)-1) + `)`
		for _, k := range opts.Kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY seq ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			e       event.Event
			kind    string
			account string
			end, at int64
		)
		if err := rows.Scan(
			&e.Seq, &e.ID, &kind, &e.RoundID, &account, &e.Amount, &e.Tokens, &e.Rate, &e.SoftCap,
			&end, &e.Title, &e.Description, &e.Successful, &e.Version, &e.PrevVersion, &at,
		); err != nil {
			return nil, fmt.Errorf("crowdsale/sqlite: scan event: %w", err)
		}
		e.Kind = event.Kind(kind)
		e.Account = fromAddress(account)
		e.EndTime, e.At = fromMillis(end), fromMillis(at)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ==================== Entitlement Token ====================

func (s *Store) TokenBalance(ctx context.Context, account types.Address) (types.Amount, error) {
	var bal types.Amount
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT balance FROM crowdsale_token_balances WHERE account = ?`, toAddress(account),
	).Scan(&bal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.Amount{}, fmt.Errorf("crowdsale/sqlite: token balance: %w", err)
	}
	return bal, nil
}

func (s *Store) TokenSupply(ctx context.Context) (types.Amount, error) {
	var supply types.Amount
	err := s.q(ctx).QueryRowContext(ctx, `SELECT supply FROM crowdsale_token_supply WHERE id = 1`).Scan(&supply)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.Amount{}, fmt.Errorf("crowdsale/sqlite: token supply: %w", err)
	}
	return supply, nil
}

// CreditTokens reads and rewrites both totals inside one transaction, since
// SQLite cannot add 256-bit decimal text.
func (s *Store) CreditTokens(ctx context.Context, account types.Address, amount types.Amount) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		bal, err := s.TokenBalance(ctx, account)
		if err != nil {
			return err
		}
		supply, err := s.TokenSupply(ctx)
		if err != nil {
			return err
		}
		if bal, err = bal.Add(amount); err != nil {
			return fmt.Errorf("crowdsale/sqlite: credit tokens: %w", err)
		}
		if supply, err = supply.Add(amount); err != nil {
			return fmt.Errorf("crowdsale/sqlite: credit tokens: %w", err)
		}

		q := s.q(ctx)
		if _, err := q.ExecContext(ctx, `
INSERT INTO crowdsale_token_balances (account, balance) VALUES (?, ?)
ON CONFLICT (account) DO UPDATE SET balance = excluded.balance`, toAddress(account), bal); err != nil {
			return fmt.Errorf("crowdsale/sqlite: write balance: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
INSERT INTO crowdsale_token_supply (id, supply) VALUES (1, ?)
ON CONFLICT (id) DO UPDATE SET supply = excluded.supply`, supply); err != nil {
			return fmt.Errorf("crowdsale/sqlite: write supply: %w", err)
		}
		return nil
	})
}

func (s *Store) HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error) {
	var found int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM crowdsale_token_roles WHERE role = ? AND account = ?`, int(role), toAddress(account),
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("crowdsale/sqlite: has role: %w", err)
	}
	return true, nil
}

func (s *Store) GrantRole(ctx context.Context, role access.Role, account types.Address) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO crowdsale_token_roles (role, account) VALUES (?, ?)`, int(role), toAddress(account))
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: grant role: %w", err)
	}
	return nil
}

func (s *Store) RevokeRole(ctx context.Context, role access.Role, account types.Address) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM crowdsale_token_roles WHERE role = ? AND account = ?`, int(role), toAddress(account))
	if err != nil {
		return fmt.Errorf("crowdsale/sqlite: revoke role: %w", err)
	}
	return nil
}

func (s *Store) RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT account FROM crowdsale_token_roles WHERE role = ? ORDER BY account ASC`, int(role))
	if err != nil {
		return nil, fmt.Errorf("crowdsale/sqlite: role members: %w", err)
	}
	defer rows.Close()

	var out []types.Address
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("crowdsale/sqlite: scan role member: %w", err)
		}
		out = append(out, fromAddress(a))
	}
	return out, rows.Err()
}

// ==================== Helpers ====================

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func toAddress(a types.Address) string {
	if a == types.ZeroAddress {
		return ""
	}
	return strings.ToLower(a.Hex())
}

func fromAddress(s string) types.Address {
	if s == "" {
		return types.ZeroAddress
	}
	return common.HexToAddress(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
