// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect creates a pool for databaseURL and checks connectivity.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("crowdsale/postgres: ping: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Migrate applies pending migrations in one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialize concurrent migrators.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(7365746)`); err != nil {
			return err
		}
		return migrate(ctx, tx, Migrations)
	})
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: %w: %w", crowdsale.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Atomic runs fn in a transaction carried by ctx.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: begin: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("crowdsale/postgres: commit: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Sale State ====================

func (s *Store) GetSaleState(ctx context.Context) (*sale.State, error) {
	var (
		st              sale.State
		owner, treasury string
		balance         string
	)
	err := s.q(ctx).QueryRow(ctx, `
SELECT initialized, owner, treasury, current_round_id, balance::text,
       implementation, layout, created_at, updated_at
FROM crowdsale_sale WHERE id = 1`).Scan(
		&st.Initialized, &owner, &treasury, &st.CurrentRoundID, &balance,
		&st.Implementation, &st.Layout, &st.CreatedAt, &st.UpdatedAt,
	)
	if isNoRows(err) {
		return &sale.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: get sale state: %w", err)
	}
	if st.Balance, err = types.ParseAmount(balance); err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: sale balance: %w", err)
	}
	st.Owner, st.Treasury = parseAddressText(owner), parseAddressText(treasury)
	st.CreatedAt, st.UpdatedAt = st.CreatedAt.UTC(), st.UpdatedAt.UTC()
	if len(st.Layout) == 0 {
		st.Layout = nil
	}
	return &st, nil
}

func (s *Store) PutSaleState(ctx context.Context, st *sale.State) error {
	layout := st.Layout
	if layout == nil {
		layout = []string{}
	}
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO crowdsale_sale (id, initialized, owner, treasury, current_round_id, balance,
                            implementation, layout, created_at, updated_at)
VALUES (1, $1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    initialized = EXCLUDED.initialized,
    owner = EXCLUDED.owner,
    treasury = EXCLUDED.treasury,
    current_round_id = EXCLUDED.current_round_id,
    balance = EXCLUDED.balance,
    implementation = EXCLUDED.implementation,
    layout = EXCLUDED.layout,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`,
		st.Initialized, addressText(st.Owner), addressText(st.Treasury), st.CurrentRoundID,
		st.Balance.String(), st.Implementation, layout, st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: put sale state: %w", err)
	}
	return nil
}

// ==================== Rounds ====================

const roundSelect = `
SELECT id, rate::text, soft_cap::text, end_time, total_raised::text, finalized, successful,
       funds_withdrawn, title, description, created_at, updated_at
FROM crowdsale_rounds`

func (s *Store) CreateRound(ctx context.Context, r *round.Round) error {
	m := toRoundModel(r)
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO crowdsale_rounds (id, rate, soft_cap, end_time, total_raised, finalized, successful,
                              funds_withdrawn, title, description, created_at, updated_at)
VALUES ($1, $2::text::numeric, $3::text::numeric, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.Rate, m.SoftCap, m.EndTime, m.TotalRaised, m.Finalized, m.Successful,
		m.FundsWithdrawn, m.Title, m.Description, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("crowdsale/postgres: create round %d: already exists", r.ID)
	}
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: create round: %w", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID uint64) (*round.Round, error) {
	m := new(roundModel)
	err := s.q(ctx).QueryRow(ctx, roundSelect+` WHERE id = $1`, roundID).Scan(m.fields()...)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: get round: %w", err)
	}
	return fromRoundModel(m)
}

func (s *Store) UpdateRound(ctx context.Context, r *round.Round) error {
	m := toRoundModel(r)
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE crowdsale_rounds SET
    rate = $2::text::numeric, soft_cap = $3::text::numeric, end_time = $4,
    total_raised = $5::text::numeric, finalized = $6, successful = $7,
    funds_withdrawn = $8, title = $9, description = $10, updated_at = $11
WHERE id = $1`,
		m.ID, m.Rate, m.SoftCap, m.EndTime, m.TotalRaised, m.Finalized, m.Successful,
		m.FundsWithdrawn, m.Title, m.Description, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, r.ID)
	}
	return nil
}

func (s *Store) ListRounds(ctx context.Context) ([]*round.Round, error) {
	rows, err := s.q(ctx).Query(ctx, roundSelect+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: list rounds: %w", err)
	}
	defer rows.Close()

	var out []*round.Round
	for rows.Next() {
		m := new(roundModel)
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, fmt.Errorf("crowdsale/postgres: scan round: %w", err)
		}
		r, err := fromRoundModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ==================== Contributions ====================

const contributionSelect = `
SELECT round_id, contributor, contribution_wei::text, entitlement_tokens::text,
       claimed_or_refunded, created_at, updated_at
FROM crowdsale_contributions`

func (s *Store) GetContribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	m := new(contributionModel)
	err := s.q(ctx).QueryRow(ctx, contributionSelect+` WHERE round_id = $1 AND contributor = $2`,
		roundID, addressText(addr),
	).Scan(m.fields()...)
	if isNoRows(err) {
		return nil, crowdsale.ErrContributionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: get contribution: %w", err)
	}
	return fromContributionModel(m)
}

func (s *Store) PutContribution(ctx context.Context, c *contribution.Contribution) error {
	m := toContributionModel(c)
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO crowdsale_contributions (round_id, contributor, contribution_wei, entitlement_tokens,
                                     claimed_or_refunded, created_at, updated_at)
VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6, $7)
ON CONFLICT (round_id, contributor) DO UPDATE SET
    contribution_wei = EXCLUDED.contribution_wei,
    entitlement_tokens = EXCLUDED.entitlement_tokens,
    claimed_or_refunded = EXCLUDED.claimed_or_refunded,
    updated_at = EXCLUDED.updated_at`,
		m.RoundID, m.Contributor, m.ContributionWei, m.EntitlementTokens,
		m.ClaimedOrRefunded, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: put contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	rows, err := s.q(ctx).Query(ctx, contributionSelect+` WHERE round_id = $1 ORDER BY contributor ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: list contributions: %w", err)
	}
	defer rows.Close()

	var out []*contribution.Contribution
	for rows.Next() {
		m := new(contributionModel)
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, fmt.Errorf("crowdsale/postgres: scan contribution: %w", err)
		}
		c, err := fromContributionModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ==================== Event Log ====================

const eventSelect = `
SELECT seq, id, kind, round_id, account, amount::text, tokens::text, rate::text, soft_cap::text,
       end_time, title, description, successful, version, prev_version, at
FROM crowdsale_events`

// AppendEvent assigns the next sequence number. Seq stays gapless because
// it is derived inside the caller's transaction rather than from a
// sequence object.
func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	q := s.q(ctx)
	var next uint64
	if err := q.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM crowdsale_events`).Scan(&next); err != nil {
		return fmt.Errorf("crowdsale/postgres: next event seq: %w", err)
	}
	e.Seq = next
	m := toEventModel(e)
	_, err := q.Exec(ctx, `
INSERT INTO crowdsale_events (seq, id, kind, round_id, account, amount, tokens, rate, soft_cap,
                              end_time, title, description, successful, version, prev_version, at)
VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
        $10, $11, $12, $13, $14, $15, $16)`,
		m.Seq, m.ID, m.Kind, m.RoundID, m.Account, m.Amount, m.Tokens, m.Rate, m.SoftCap,
		m.EndTime, m.Title, m.Description, m.Successful, m.Version, m.PrevVersion, m.At,
	)
	if err != nil {
		e.Seq = 0
		return fmt.Errorf("crowdsale/postgres: append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var (
		where = []string{"seq > $1"}
		args  = []any{opts.AfterSeq}
	)
	if opts.RoundID != 0 {
		args = append(args, opts.RoundID)
		where = append(where, "round_id = $"+strconv.Itoa(len(args)))
	}
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		where = append(where, "kind = ANY($"+strconv.Itoa(len(args))+")")
	}
	query := eventSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY seq ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		m := new(eventModel)
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, fmt.Errorf("crowdsale/postgres: scan event: %w", err)
		}
		e, err := fromEventModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ==================== Entitlement Token ====================

func (s *Store) TokenBalance(ctx context.Context, account types.Address) (types.Amount, error) {
	return s.scanAmount(ctx, "token balance",
		`SELECT balance::text FROM crowdsale_token_balances WHERE account = $1`, addressText(account))
}

func (s *Store) TokenSupply(ctx context.Context) (types.Amount, error) {
	return s.scanAmount(ctx, "token supply", `SELECT supply::text FROM crowdsale_token_supply WHERE id = 1`)
}

func (s *Store) scanAmount(ctx context.Context, what, query string, args ...any) (types.Amount, error) {
	var text string
	err := s.q(ctx).QueryRow(ctx, query, args...).Scan(&text)
	if isNoRows(err) {
		return types.Amount{}, nil
	}
	if err != nil {
		return types.Amount{}, fmt.Errorf("crowdsale/postgres: %s: %w", what, err)
	}
	a, err := types.ParseAmount(text)
	if err != nil {
		return types.Amount{}, fmt.Errorf("crowdsale/postgres: %s: %w", what, err)
	}
	return a, nil
}

// CreditTokens adds in Go so the uint256 overflow check applies; NUMERIC
// would silently hold values past 2^256.
func (s *Store) CreditTokens(ctx context.Context, account types.Address, amount types.Amount) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		if _, err := q.Exec(ctx, `
INSERT INTO crowdsale_token_supply (id, supply) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`); err != nil {
			return fmt.Errorf("crowdsale/postgres: init supply: %w", err)
		}
		var supplyText string
		if err := q.QueryRow(ctx,
			`SELECT supply::text FROM crowdsale_token_supply WHERE id = 1 FOR UPDATE`).Scan(&supplyText); err != nil {
			return fmt.Errorf("crowdsale/postgres: lock supply: %w", err)
		}
		supply, err := types.ParseAmount(supplyText)
		if err != nil {
			return fmt.Errorf("crowdsale/postgres: token supply: %w", err)
		}
		bal, err := s.TokenBalance(ctx, account)
		if err != nil {
			return err
		}
		if supply, err = supply.Add(amount); err != nil {
			return fmt.Errorf("crowdsale/postgres: credit tokens: %w", err)
		}
		if bal, err = bal.Add(amount); err != nil {
			return fmt.Errorf("crowdsale/postgres: credit tokens: %w", err)
		}

		if _, err := q.Exec(ctx, `
INSERT INTO crowdsale_token_balances (account, balance) VALUES ($1, $2::text::numeric)
ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance`, addressText(account), bal.String()); err != nil {
			return fmt.Errorf("crowdsale/postgres: write balance: %w", err)
		}
		if _, err := q.Exec(ctx,
			`UPDATE crowdsale_token_supply SET supply = $1::text::numeric WHERE id = 1`, supply.String()); err != nil {
			return fmt.Errorf("crowdsale/postgres: write supply: %w", err)
		}
		return nil
	})
}

func (s *Store) HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error) {
	var ok bool
	err := s.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM crowdsale_token_roles WHERE role = $1 AND account = $2)`,
		int16(role), addressText(account),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("crowdsale/postgres: has role: %w", err)
	}
	return ok, nil
}

func (s *Store) GrantRole(ctx context.Context, role access.Role, account types.Address) error {
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO crowdsale_token_roles (role, account) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		int16(role), addressText(account))
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: grant role: %w", err)
	}
	return nil
}

func (s *Store) RevokeRole(ctx context.Context, role access.Role, account types.Address) error {
	_, err := s.q(ctx).Exec(ctx,
		`DELETE FROM crowdsale_token_roles WHERE role = $1 AND account = $2`, int16(role), addressText(account))
	if err != nil {
		return fmt.Errorf("crowdsale/postgres: revoke role: %w", err)
	}
	return nil
}

func (s *Store) RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT account FROM crowdsale_token_roles WHERE role = $1 ORDER BY account ASC`, int16(role))
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: role members: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("crowdsale/postgres: scan role members: %w", err)
	}
	out := make([]types.Address, len(accounts))
	for i, a := range accounts {
		out[i] = parseAddressText(a)
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
