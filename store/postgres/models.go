package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/types"
)

// Amounts cross the wire as decimal text and are cast to NUMERIC in SQL.

type roundModel struct {
	ID             uint64
	Rate           string
	SoftCap        string
	EndTime        time.Time
	TotalRaised    string
	Finalized      bool
	Successful     bool
	FundsWithdrawn bool
	Title          string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (m *roundModel) fields() []any {
	return []any{
		&m.ID, &m.Rate, &m.SoftCap, &m.EndTime, &m.TotalRaised, &m.Finalized, &m.Successful,
		&m.FundsWithdrawn, &m.Title, &m.Description, &m.CreatedAt, &m.UpdatedAt,
	}
}

func toRoundModel(r *round.Round) *roundModel {
	return &roundModel{
		ID:             r.ID,
		Rate:           r.Rate.String(),
		SoftCap:        r.SoftCap.String(),
		EndTime:        r.EndTime.UTC(),
		TotalRaised:    r.TotalRaised.String(),
		Finalized:      r.Finalized,
		Successful:     r.Successful,
		FundsWithdrawn: r.FundsWithdrawn,
		Title:          r.Title,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func fromRoundModel(m *roundModel) (*round.Round, error) {
	amounts, err := parseAmounts(m.Rate, m.SoftCap, m.TotalRaised)
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", m.ID, err)
	}
	r := &round.Round{
		ID:             m.ID,
		Rate:           amounts[0],
		SoftCap:        amounts[1],
		EndTime:        m.EndTime.UTC(),
		TotalRaised:    amounts[2],
		Finalized:      m.Finalized,
		Successful:     m.Successful,
		FundsWithdrawn: m.FundsWithdrawn,
		Title:          m.Title,
		Description:    m.Description,
	}
	r.CreatedAt, r.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return r, nil
}

type contributionModel struct {
	RoundID           uint64
	Contributor       string
	ContributionWei   string
	EntitlementTokens string
	ClaimedOrRefunded bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (m *contributionModel) fields() []any {
	return []any{
		&m.RoundID, &m.Contributor, &m.ContributionWei, &m.EntitlementTokens,
		&m.ClaimedOrRefunded, &m.CreatedAt, &m.UpdatedAt,
	}
}

func toContributionModel(c *contribution.Contribution) *contributionModel {
	return &contributionModel{
		RoundID:           c.RoundID,
		Contributor:       addressText(c.Contributor),
		ContributionWei:   c.ContributionWei.String(),
		EntitlementTokens: c.EntitlementTokens.String(),
		ClaimedOrRefunded: c.ClaimedOrRefunded,
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

func fromContributionModel(m *contributionModel) (*contribution.Contribution, error) {
	amounts, err := parseAmounts(m.ContributionWei, m.EntitlementTokens)
	if err != nil {
		return nil, fmt.Errorf("contribution %d/%s: %w", m.RoundID, m.Contributor, err)
	}
	c := &contribution.Contribution{
		RoundID:           m.RoundID,
		Contributor:       parseAddressText(m.Contributor),
		ContributionWei:   amounts[0],
		EntitlementTokens: amounts[1],
		ClaimedOrRefunded: m.ClaimedOrRefunded,
	}
	c.CreatedAt, c.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return c, nil
}

type eventModel struct {
	Seq         uint64
	ID          string
	Kind        string
	RoundID     uint64
	Account     string
	Amount      string
	Tokens      string
	Rate        string
	SoftCap     string
	EndTime     *time.Time
	Title       string
	Description string
	Successful  bool
	Version     string
	PrevVersion string
	At          time.Time
}

func (m *eventModel) fields() []any {
	return []any{
		&m.Seq, &m.ID, &m.Kind, &m.RoundID, &m.Account, &m.Amount, &m.Tokens, &m.Rate, &m.SoftCap,
		&m.EndTime, &m.Title, &m.Description, &m.Successful, &m.Version, &m.PrevVersion, &m.At,
	}
}

func toEventModel(e *event.Event) *eventModel {
	m := &eventModel{
		Seq:         e.Seq,
		ID:          e.ID.String(),
		Kind:        string(e.Kind),
		RoundID:     e.RoundID,
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
		At:          e.At.UTC(),
	}
	if !e.EndTime.IsZero() {
		t := e.EndTime.UTC()
		m.EndTime = &t
	}
	return m
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eid, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", m.Seq, err)
	}
	amounts, err := parseAmounts(m.Amount, m.Tokens, m.Rate, m.SoftCap)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", m.Seq, err)
	}
	e := &event.Event{
		Seq:         m.Seq,
		ID:          eid,
		Kind:        event.Kind(m.Kind),
		RoundID:     m.RoundID,
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

func parseAmounts(values ...string) ([]types.Amount, error) {
	out := make([]types.Amount, len(values))
	for i, v := range values {
		a, err := types.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// addressText stores addresses as lower-case hex so text order matches
// byte order. The zero address is stored as "".
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
