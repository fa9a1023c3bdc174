package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/proxy"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{crowdsale.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("finalize: %w", crowdsale.ErrUnauthorized), http.StatusForbidden},
		{crowdsale.ErrRoundNotEnded, http.StatusConflict},
		{crowdsale.ErrAlreadyResolved, http.StatusConflict},
		{crowdsale.ErrPreviousRoundNotFinalized, http.StatusConflict},
		{crowdsale.ErrLayoutNotAppendOnly, http.StatusConflict},
		{crowdsale.ErrZeroAmount, http.StatusBadRequest},
		{crowdsale.ValidationError{Field: "rate", Message: "zero"}, http.StatusBadRequest},
		{crowdsale.ErrRoundNotFound, http.StatusNotFound},
		{proxy.ErrUnknownRelease, http.StatusNotFound},
		{proxy.ErrNotOpen, http.StatusServiceUnavailable},
		{crowdsale.ErrPayoutFailed, http.StatusBadGateway},
		{fmt.Errorf("%w: refund: %v", crowdsale.ErrResolutionUncertain, crowdsale.ErrTransactionFailed), http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
