package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/proxy"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/types"
)

// Response is the envelope of every /api/v1 reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const callerKey = "crowdsale.caller"

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func failure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

// fail writes err with the status of its error class.
func fail(c *gin.Context, err error) {
	failure(c, statusFor(err), err.Error())
}

// statusFor maps ledger error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case crowdsale.IsAuthorizationError(err):
		return http.StatusForbidden
	case crowdsale.IsNotFound(err), errors.Is(err, proxy.ErrUnknownRelease):
		return http.StatusNotFound
	case crowdsale.IsZeroValue(err), crowdsale.IsValidation(err),
		errors.Is(err, token.ErrZeroMint), errors.Is(err, token.ErrMintToZeroAddress):
		return http.StatusBadRequest
	case crowdsale.IsPhaseError(err), crowdsale.IsDoubleResolution(err), crowdsale.IsRoundCreationError(err),
		errors.Is(err, crowdsale.ErrLayoutNotAppendOnly), errors.Is(err, crowdsale.ErrAlreadyInitialized),
		errors.Is(err, crowdsale.ErrInsufficientHoldings):
		return http.StatusConflict
	case errors.Is(err, proxy.ErrNotOpen), errors.Is(err, crowdsale.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, crowdsale.ErrResolutionUncertain):
		return http.StatusInternalServerError
	case crowdsale.IsRetryable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requireCaller parses X-Caller and aborts with 401 when it is missing.
func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(CallerHeader)
		if raw == "" {
			failure(c, http.StatusUnauthorized, "missing "+CallerHeader+" header")
			return
		}
		addr, err := types.ParseAddress(raw)
		if err != nil {
			failure(c, http.StatusBadRequest, err.Error())
			return
		}
		if addr == types.ZeroAddress {
			failure(c, http.StatusForbidden, access.ErrUnauthorized.Error())
			return
		}
		c.Set(callerKey, addr)
		c.Next()
	}
}

func caller(c *gin.Context) types.Address {
	v, _ := c.Get(callerKey)
	addr, _ := v.(types.Address)
	return addr
}
