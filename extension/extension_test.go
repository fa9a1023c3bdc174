package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/types"
)

const (
	owner    = "0x00000000000000000000000000000000000000a1"
	treasury = "0x00000000000000000000000000000000000000b2"
	saleAddr = "0x00000000000000000000000000000000000000c3"
)

func init() { gin.SetMode(gin.TestMode) }

func TestMergeConfigurations(t *testing.T) {
	e := New()

	yaml := Config{Release: "v2", LeaderboardLimit: 5}
	prog := Config{
		Release:              "v1",
		Owner:                owner,
		DisableRoutes:        true,
		AutoFinalize:         true,
		AutoFinalizeInterval: 10 * time.Second,
	}
	got := e.mergeConfigurations(yaml, prog)

	assert.Equal(t, "v2", got.Release)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, 5, got.LeaderboardLimit)
	assert.True(t, got.DisableRoutes)
	assert.True(t, got.AutoFinalize)
	assert.Equal(t, 10*time.Second, got.AutoFinalizeInterval)
	assert.Equal(t, "/crowdsale", got.BasePath)
}

func TestMergeWithDefaults(t *testing.T) {
	got := New().mergeWithDefaults(Config{})
	assert.Equal(t, DefaultConfig(), got)
}

func TestBuildAndOpen(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := New(WithStore(s), WithSale(owner, treasury, saleAddr))
	e.config = e.mergeWithDefaults(e.config)

	require.NoError(t, e.build())
	require.NoError(t, e.open(ctx))
	// Opening again on the same store is a no-op.
	require.NoError(t, e.open(ctx))

	assert.Equal(t, "v1", e.EntryPoint().Version())
	ok, err := e.Token().HasRole(ctx, access.RoleMinter, types.MustParseAddress(saleAddr))
	require.NoError(t, err)
	assert.True(t, ok)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/crowdsale/api/v1/sale", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, e.Health(ctx))
}

func TestBuildRejectsBadAddress(t *testing.T) {
	e := New(WithSale("nope", treasury, saleAddr))
	e.config = e.mergeWithDefaults(e.config)
	require.Error(t, e.build())
}

func TestDisableRoutes(t *testing.T) {
	e := New(WithSale(owner, treasury, saleAddr), WithDisableRoutes())
	e.config = e.mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	assert.Nil(t, e.Handler())
}
