package mongo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// ==================== Sale models ====================

const saleDocID = "sale"

type saleModel struct {
	ID             string    `bson:"_id"`
	Initialized    bool      `bson:"initialized"`
	Owner          string    `bson:"owner"`
	Treasury       string    `bson:"treasury"`
	CurrentRoundID int64     `bson:"current_round_id"`
	Balance        string    `bson:"balance"`
	Implementation string    `bson:"implementation"`
	Layout         []string  `bson:"layout"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toSaleModel(st *sale.State) *saleModel {
	return &saleModel{
		ID:             saleDocID,
		Initialized:    st.Initialized,
		Owner:          addressText(st.Owner),
		Treasury:       addressText(st.Treasury),
		CurrentRoundID: int64(st.CurrentRoundID), //nolint:gosec // round ids are small
		Balance:        st.Balance.String(),
		Implementation: st.Implementation,
		Layout:         st.Layout,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}

func fromSaleModel(m *saleModel) (*sale.State, error) {
	bal, err := parseAmount(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("sale balance: %w", err)
	}
	st := &sale.State{
		Initialized:    m.Initialized,
		Owner:          parseAddressText(m.Owner),
		Treasury:       parseAddressText(m.Treasury),
		CurrentRoundID: uint64(m.CurrentRoundID), //nolint:gosec // stored from a uint64
		Balance:        bal,
		Implementation: m.Implementation,
	}
	if len(m.Layout) > 0 {
		st.Layout = m.Layout
	}
	st.CreatedAt, st.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return st, nil
}

// ==================== Round models ====================

type roundModel struct {
	ID             int64     `bson:"_id"`
	Rate           string    `bson:"rate"`
	SoftCap        string    `bson:"soft_cap"`
	EndTime        time.Time `bson:"end_time"`
	TotalRaised    string    `bson:"total_raised"`
	Finalized      bool      `bson:"finalized"`
	Successful     bool      `bson:"successful"`
	FundsWithdrawn bool      `bson:"funds_withdrawn"`
	Title          string    `bson:"title"`
	Description    string    `bson:"description"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toRoundModel(r *round.Round) *roundModel {
	return &roundModel{
		ID:             int64(r.ID), //nolint:gosec // round ids are small
		Rate:           r.Rate.String(),
		SoftCap:        r.SoftCap.String(),
		EndTime:        r.EndTime,
		TotalRaised:    r.TotalRaised.String(),
		Finalized:      r.Finalized,
		Successful:     r.Successful,
		FundsWithdrawn: r.FundsWithdrawn,
		Title:          r.Title,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRoundModel(m *roundModel) (*round.Round, error) {
	rate, err := parseAmount(m.Rate)
	if err != nil {
		return nil, fmt.Errorf("round %d rate: %w", m.ID, err)
	}
	softCap, err := parseAmount(m.SoftCap)
	if err != nil {
		return nil, fmt.Errorf("round %d soft cap: %w", m.ID, err)
	}
	raised, err := parseAmount(m.TotalRaised)
	if err != nil {
		return nil, fmt.Errorf("round %d total raised: %w", m.ID, err)
	}
	r := &round.Round{
		ID:             uint64(m.ID), //nolint:gosec // stored from a uint64
		Rate:           rate,
		SoftCap:        softCap,
		EndTime:        m.EndTime.UTC(),
		TotalRaised:    raised,
		Finalized:      m.Finalized,
		Successful:     m.Successful,
		FundsWithdrawn: m.FundsWithdrawn,
		Title:          m.Title,
		Description:    m.Description,
	}
	r.CreatedAt, r.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return r, nil
}

// ==================== Contribution models ====================

type contributionModel struct {
	ID                string    `bson:"_id"`
	RoundID           int64     `bson:"round_id"`
	Contributor       string    `bson:"contributor"`
	ContributionWei   string    `bson:"contribution_wei"`
	EntitlementTokens string    `bson:"entitlement_tokens"`
	ClaimedOrRefunded bool      `bson:"claimed_or_refunded"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func contributionDocID(roundID uint64, addr types.Address) string {
	return strconv.FormatUint(roundID, 10) + ":" + addressText(addr)
}

func toContributionModel(c *contribution.Contribution) *contributionModel {
	return &contributionModel{
		ID:                contributionDocID(c.RoundID, c.Contributor),
		RoundID:           int64(c.RoundID), //nolint:gosec // round ids are small
		Contributor:       addressText(c.Contributor),
		ContributionWei:   c.ContributionWei.String(),
		EntitlementTokens: c.EntitlementTokens.String(),
		ClaimedOrRefunded: c.ClaimedOrRefunded,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func fromContributionModel(m *contributionModel) (*contribution.Contribution, error) {
	wei, err := parseAmount(m.ContributionWei)
	if err != nil {
		return nil, fmt.Errorf("contribution %s wei: %w", m.ID, err)
	}
	tokens, err := parseAmount(m.EntitlementTokens)
	if err != nil {
		return nil, fmt.Errorf("contribution %s tokens: %w", m.ID, err)
	}
	c := &contribution.Contribution{
		RoundID:           uint64(m.RoundID), //nolint:gosec // stored from a uint64
		Contributor:       parseAddressText(m.Contributor),
		ContributionWei:   wei,
		EntitlementTokens: tokens,
		ClaimedOrRefunded: m.ClaimedOrRefunded,
	}
	c.CreatedAt, c.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return c, nil
}

// ==================== Event models ====================

type eventModel struct {
	Seq         int64      `bson:"_id"`
	ID          string     `bson:"event_id"`
	Kind        string     `bson:"kind"`
	RoundID     int64      `bson:"round_id"`
	Account     string     `bson:"account,omitempty"`
	Amount      string     `bson:"amount"`
	Tokens      string     `bson:"tokens"`
	Rate        string     `bson:"rate"`
	SoftCap     string     `bson:"soft_cap"`
	EndTime     *time.Time `bson:"end_time,omitempty"`
	Title       string     `bson:"title,omitempty"`
	Description string     `bson:"description,omitempty"`
	Successful  bool       `bson:"successful"`
	Version     string     `bson:"version,omitempty"`
	PrevVersion string     `bson:"prev_version,omitempty"`
	At          time.Time  `bson:"at"`
}

func toEventModel(e *event.Event) *eventModel {
	m := &eventModel{
		Seq:         int64(e.Seq), //nolint:gosec // sequence numbers fit in int64
		ID:          e.ID.String(),
		Kind:        string(e.Kind),
		RoundID:     int64(e.RoundID), //nolint:gosec // round ids are small
		Account:     addressText(e.Account),
		Amount:      e.Amount.String(),
		Tokens:      e.Tokens.String(),
		Rate:        e.Rate.String(),
		SoftCap:     e.SoftCap.String(),
		Title:       e.Title,
		Description: e.Description,
		Successful:  e.Successful,
		Version:     e.Version,
		PrevVersion: e.PrevVersion,
		At:          e.At,
	}
	if !e.EndTime.IsZero() {
		t := e.EndTime
		m.EndTime = &t
	}
	return m
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eid, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", m.Seq, err)
	}
	var amounts [4]types.Amount
	for i, v := range []string{m.Amount, m.Tokens, m.Rate, m.SoftCap} {
		if amounts[i], err = parseAmount(v); err != nil {
			return nil, fmt.Errorf("event %d: %w", m.Seq, err)
		}
	}
	e := &event.Event{
		Seq:         uint64(m.Seq), //nolint:gosec // stored from a uint64
		ID:          eid,
		Kind:        event.Kind(m.Kind),
		RoundID:     uint64(m.RoundID), //nolint:gosec // stored from a uint64
		Account:     parseAddressText(m.Account),
		Amount:      amounts[0],
		Tokens:      amounts[1],
		Rate:        amounts[2],
		SoftCap:     amounts[3],
		Title:       m.Title,
		Description: m.Description,
		Successful:  m.Successful,
		Version:     m.Version,
		PrevVersion: m.PrevVersion,
		At:          m.At.UTC(),
	}
	if m.EndTime != nil {
		e.EndTime = m.EndTime.UTC()
	}
	return e, nil
}

// ==================== Token models ====================

type balanceModel struct {
	Account string `bson:"_id"`
	Balance string `bson:"balance"`
}

type roleModel struct {
	ID      string `bson:"_id"`
	Role    int32  `bson:"role"`
	Account string `bson:"account"`
}

func roleDocID(role access.Role, account types.Address) string {
	return role.String() + ":" + addressText(account)
}

type counterModel struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// ==================== Helpers ====================

func parseAmount(s string) (types.Amount, error) {
	if s == "" {
		return types.Amount{}, nil
	}
	return types.ParseAmount(s)
}

func addressText(a types.Address) string {
	if a == types.ZeroAddress {
		return ""
	}
	return strings.ToLower(a.Hex())
}

func parseAddressText(s string) types.Address {
	if s == "" {
		return types.ZeroAddress
	}
	return common.HexToAddress(s)
}
