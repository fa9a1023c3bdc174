package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/leaderboard"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/types"
)

// BuyRequest is the body of POST /rounds/current/buy.
type BuyRequest struct {
	Amount types.Amount `json:"amount"`
}

// UpdateRoundRequest is the body of PATCH /rounds/:id. Absent fields are
// left unchanged.
type UpdateRoundRequest struct {
	EndTime     *time.Time `json:"end_time,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
}

// TreasuryRequest is the body of PUT /treasury.
type TreasuryRequest struct {
	Treasury types.Address `json:"treasury" binding:"required"`
}

// UpgradeRequest is the body of POST /upgrade.
type UpgradeRequest struct {
	Version string `json:"version" binding:"required"`
}

// RoleRequest is the body of POST /token/roles.
type RoleRequest struct {
	Role    string        `json:"role" binding:"required"`
	Account types.Address `json:"account" binding:"required"`
}

// BalanceResponse is returned by GET /token/balances/:address.
type BalanceResponse struct {
	Account     types.Address `json:"account"`
	Balance     types.Amount  `json:"balance"`
	TotalSupply types.Amount  `json:"total_supply"`
}

// roundID parses the :id segment. "current" selects the current round.
func roundID(c *gin.Context) (uint64, bool) {
	raw := c.Param("id")
	if raw == "current" {
		return crowdsale.CurrentRound, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		failure(c, http.StatusBadRequest, "invalid round id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

func (s *Server) getSale(c *gin.Context) {
	st, err := s.sale.SaleState(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, st)
}

func (s *Server) listRounds(c *gin.Context) {
	rounds, err := s.sale.Rounds(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if rounds == nil {
		rounds = []*round.Round{}
	}
	success(c, http.StatusOK, rounds)
}

func (s *Server) getCurrentRound(c *gin.Context) {
	info, err := s.sale.RoundInfo(c.Request.Context(), crowdsale.CurrentRound)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, info)
}

func (s *Server) getRound(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	info, err := s.sale.RoundInfo(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, info)
}

func (s *Server) getContribution(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	addr, err := types.ParseAddress(c.Param("address"))
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.sale.Contribution(c.Request.Context(), id, addr)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, rec)
}

func (s *Server) listEvents(c *gin.Context) {
	var opts event.ListOpts
	var err error
	if v := c.Query("after"); v != "" {
		if opts.AfterSeq, err = strconv.ParseUint(v, 10, 64); err != nil {
			failure(c, http.StatusBadRequest, "invalid after")
			return
		}
	}
	if v := c.Query("round"); v != "" {
		if opts.RoundID, err = strconv.ParseUint(v, 10, 64); err != nil {
			failure(c, http.StatusBadRequest, "invalid round")
			return
		}
	}
	opts.Limit = 100
	if v := c.Query("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 0 {
			failure(c, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	for _, k := range c.QueryArray("kind") {
		opts.Kinds = append(opts.Kinds, event.Kind(k))
	}

	events, err := s.sale.Events(c.Request.Context(), opts)
	if err != nil {
		fail(c, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}
	success(c, http.StatusOK, events)
}

func (s *Server) getLeaderboard(c *gin.Context) {
	opts := leaderboard.Options{Limit: s.leaderboardLimit, LegacyFirstRound: s.legacyFirstRound}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			failure(c, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	board, err := leaderboard.Replay(c.Request.Context(), leaderboard.SourceFunc(s.sale.Events), opts)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, board)
}

func (s *Server) getBalance(c *gin.Context) {
	addr, err := types.ParseAddress(c.Param("address"))
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	bal, err := s.token.BalanceOf(ctx, addr)
	if err != nil {
		fail(c, err)
		return
	}
	supply, err := s.token.TotalSupply(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, BalanceResponse{Account: addr, Balance: bal, TotalSupply: supply})
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

func (s *Server) startRound(c *gin.Context) {
	var req crowdsale.RoundParams
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := s.sale.StartRound(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, r)
}

func (s *Server) buy(c *gin.Context) {
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.sale.Buy(c.Request.Context(), caller(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, rec)
}

func (s *Server) finalize(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	r, err := s.sale.FinalizeRound(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, r)
}

func (s *Server) claim(c *gin.Context) {
	s.resolve(c, s.sale.ClaimRound)
}

func (s *Server) refund(c *gin.Context) {
	s.resolve(c, s.sale.RefundRound)
}

func (s *Server) withdraw(c *gin.Context) {
	s.resolve(c, s.sale.WithdrawRound)
}

func (s *Server) resolve(c *gin.Context, op func(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error)) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	e, err := op(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, e)
}

func (s *Server) updateRound(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	var req UpdateRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.EndTime == nil && req.Title == nil && req.Description == nil {
		failure(c, http.StatusBadRequest, "nothing to update")
		return
	}

	ctx := c.Request.Context()
	who := caller(c)
	var (
		r   *round.Round
		err error
	)
	if req.EndTime != nil {
		if r, err = s.sale.SetEndTime(ctx, who, id, *req.EndTime); err != nil {
			fail(c, err)
			return
		}
	}
	if req.Title != nil || req.Description != nil {
		if r == nil {
			info, err := s.sale.RoundInfo(ctx, id)
			if err != nil {
				fail(c, err)
				return
			}
			if info.Round == nil {
				fail(c, crowdsale.ErrNoActiveRound)
				return
			}
			r = info.Round
		}
		title, desc := r.Title, r.Description
		if req.Title != nil {
			title = *req.Title
		}
		if req.Description != nil {
			desc = *req.Description
		}
		if r, err = s.sale.SetRoundMetadata(ctx, who, id, title, desc); err != nil {
			fail(c, err)
			return
		}
	}
	success(c, http.StatusOK, r)
}

func (s *Server) setTreasury(c *gin.Context) {
	var req TreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sale.SetTreasury(c.Request.Context(), caller(c), req.Treasury); err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, req)
}

func (s *Server) upgrade(c *gin.Context) {
	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sale.Upgrade(c.Request.Context(), caller(c), req.Version); err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"version": s.sale.Version()})
}

func (s *Server) grantRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.token.GrantRole(c.Request.Context(), caller(c), role, req.Account); err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, req)
}
