// Package mongo implements store.Store on MongoDB. Atomic requires a replica
// set or sharded cluster, since it runs inside a multi-document transaction.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	crowdsalestore "github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/types"
)

// Collection name constants.
const (
	colSale          = "crowdsale_sale"
	colRounds        = "crowdsale_rounds"
	colContributions = "crowdsale_contributions"
	colEvents        = "crowdsale_events"
	colBalances      = "crowdsale_token_balances"
	colRoles         = "crowdsale_token_roles"
	colCounters      = "crowdsale_counters"
)

const (
	counterEventSeq = "event_seq"
	// supplyDocID holds the total supply in the balances collection.
	supplyDocID = "total_supply"
)

// compile-time interface check
var _ crowdsalestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store over database name of client.
func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// Connect dials uri and returns a store over database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: connect: %w", err)
	}
	s := New(client, name)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("crowdsale/mongo: ping: %w", err)
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// Migrate creates indexes for all crowdsale collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.col(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("crowdsale/mongo: %w: %s indexes: %w", crowdsale.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Atomic runs fn inside a multi-document transaction. Calls made with a ctx
// already bound to a session join it. The callback is never retried, since
// it may have performed external side effects.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		if errors.Is(err, mongo.ErrClientDisconnected) {
			return crowdsale.ErrStoreClosed
		}
		return fmt.Errorf("crowdsale/mongo: start session: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("crowdsale/mongo: start transaction: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	if err := fn(mongo.NewSessionContext(ctx, sess)); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return err
	}
	if err := sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("crowdsale/mongo: commit: %w: %w", crowdsale.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Sale State ====================

func (s *Store) GetSaleState(ctx context.Context) (*sale.State, error) {
	var m saleModel
	err := s.col(colSale).FindOne(ctx, bson.M{"_id": saleDocID}).Decode(&m)
	if isNoDocuments(err) {
		return &sale.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: get sale state: %w", err)
	}
	st, err := fromSaleModel(&m)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: %w", err)
	}
	return st, nil
}

func (s *Store) PutSaleState(ctx context.Context, st *sale.State) error {
	m := toSaleModel(st)
	_, err := s.col(colSale).ReplaceOne(ctx, bson.M{"_id": saleDocID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: put sale state: %w", err)
	}
	return nil
}

// ==================== Rounds ====================

func (s *Store) CreateRound(ctx context.Context, r *round.Round) error {
	_, err := s.col(colRounds).InsertOne(ctx, toRoundModel(r))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("crowdsale/mongo: create round %d: already exists", r.ID)
	}
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: create round: %w", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID uint64) (*round.Round, error) {
	var m roundModel
	err := s.col(colRounds).FindOne(ctx, bson.M{"_id": int64(roundID)}).Decode(&m) //nolint:gosec // round ids are small
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: get round: %w", err)
	}
	return fromRoundModel(&m)
}

func (s *Store) UpdateRound(ctx context.Context, r *round.Round) error {
	m := toRoundModel(r)
	res, err := s.col(colRounds).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: update round: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, r.ID)
	}
	return nil
}

func (s *Store) ListRounds(ctx context.Context) ([]*round.Round, error) {
	cur, err := s.col(colRounds).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: list rounds: %w", err)
	}
	var models []roundModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: decode rounds: %w", err)
	}

	out := make([]*round.Round, 0, len(models))
	for i := range models {
		r, err := fromRoundModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ==================== Contributions ====================

func (s *Store) GetContribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	var m contributionModel
	err := s.col(colContributions).FindOne(ctx, bson.M{"_id": contributionDocID(roundID, addr)}).Decode(&m)
	if isNoDocuments(err) {
		return nil, crowdsale.ErrContributionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: get contribution: %w", err)
	}
	return fromContributionModel(&m)
}

func (s *Store) PutContribution(ctx context.Context, c *contribution.Contribution) error {
	m := toContributionModel(c)
	_, err := s.col(colContributions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: put contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	cur, err := s.col(colContributions).Find(ctx,
		bson.M{"round_id": int64(roundID)}, //nolint:gosec // round ids are small
		options.Find().SetSort(bson.D{{Key: "contributor", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: list contributions: %w", err)
	}
	var models []contributionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: decode contributions: %w", err)
	}

	out := make([]*contribution.Contribution, 0, len(models))
	for i := range models {
		c, err := fromContributionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ==================== Event Log ====================

// AppendEvent takes the next value of the event counter. Inside a
// transaction the increment rolls back with everything else, keeping Seq
// gapless.
func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	seq, err := s.next(ctx, counterEventSeq)
	if err != nil {
		return err
	}
	e.Seq = uint64(seq) //nolint:gosec // counter starts at 1
	if _, err := s.col(colEvents).InsertOne(ctx, toEventModel(e)); err != nil {
		e.Seq = 0
		return fmt.Errorf("crowdsale/mongo: append event: %w", err)
	}
	return nil
}

func (s *Store) next(ctx context.Context, counter string) (int64, error) {
	var c counterModel
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": counter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("crowdsale/mongo: next %s: %w", counter, err)
	}
	return c.Value, nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	filter := bson.M{"_id": bson.M{"$gt": int64(opts.AfterSeq)}} //nolint:gosec // sequence numbers fit in int64
	if opts.RoundID != 0 {
		filter["round_id"] = int64(opts.RoundID) //nolint:gosec // round ids are small
	}
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		filter["kind"] = bson.M{"$in": kinds}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.col(colEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: list events: %w", err)
	}
	var models []eventModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: decode events: %w", err)
	}

	out := make([]*event.Event, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ==================== Entitlement Token ====================

func (s *Store) TokenBalance(ctx context.Context, account types.Address) (types.Amount, error) {
	return s.amountDoc(ctx, colBalances, addressText(account))
}

func (s *Store) TokenSupply(ctx context.Context) (types.Amount, error) {
	return s.amountDoc(ctx, colBalances, supplyDocID)
}

func (s *Store) amountDoc(ctx context.Context, col, key string) (types.Amount, error) {
	var m balanceModel
	err := s.col(col).FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if isNoDocuments(err) {
		return types.Amount{}, nil
	}
	if err != nil {
		return types.Amount{}, fmt.Errorf("crowdsale/mongo: read %s: %w", key, err)
	}
	return parseAmount(m.Balance)
}

func (s *Store) putAmountDoc(ctx context.Context, col, key string, a types.Amount) error {
	_, err := s.col(col).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"balance": a.String()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: write %s: %w", key, err)
	}
	return nil
}

// CreditTokens updates the holder balance and the supply document in one
// transaction.
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
			return fmt.Errorf("crowdsale/mongo: credit tokens: %w", err)
		}
		if supply, err = supply.Add(amount); err != nil {
			return fmt.Errorf("crowdsale/mongo: credit tokens: %w", err)
		}
		if err := s.putAmountDoc(ctx, colBalances, addressText(account), bal); err != nil {
			return err
		}
		return s.putAmountDoc(ctx, colBalances, supplyDocID, supply)
	})
}

func (s *Store) HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error) {
	n, err := s.col(colRoles).CountDocuments(ctx, bson.M{"_id": roleDocID(role, account)})
	if err != nil {
		return false, fmt.Errorf("crowdsale/mongo: has role: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GrantRole(ctx context.Context, role access.Role, account types.Address) error {
	m := roleModel{ID: roleDocID(role, account), Role: int32(role), Account: addressText(account)}
	_, err := s.col(colRoles).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("crowdsale/mongo: grant role: %w", err)
	}
	return nil
}

func (s *Store) RevokeRole(ctx context.Context, role access.Role, account types.Address) error {
	if _, err := s.col(colRoles).DeleteOne(ctx, bson.M{"_id": roleDocID(role, account)}); err != nil {
		return fmt.Errorf("crowdsale/mongo: revoke role: %w", err)
	}
	return nil
}

func (s *Store) RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error) {
	cur, err := s.col(colRoles).Find(ctx,
		bson.M{"role": int32(role)},
		options.Find().SetSort(bson.D{{Key: "account", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: role members: %w", err)
	}
	var models []roleModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("crowdsale/mongo: decode role members: %w", err)
	}
	out := make([]types.Address, len(models))
	for i, m := range models {
		out[i] = parseAddressText(m.Account)
	}
	return out, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all crowdsale collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colContributions: {
			{Keys: bson.D{{Key: "round_id", Value: 1}, {Key: "contributor", Value: 1}}},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "round_id", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colRoles: {
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "account", Value: 1}}},
		},
	}
}
