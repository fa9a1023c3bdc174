package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale/id"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix id.Prefix
	}{
		{"event", id.NewEventID, id.PrefixEvent},
		{"mint", id.NewMintID, id.PrefixMint},
		{"transfer", id.NewTransferID, id.PrefixTransfer},
		{"release", id.NewReleaseID, id.PrefixRelease},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.newFn()
			assert.True(t, strings.HasPrefix(v.String(), string(tt.prefix)+"_"))
			assert.Equal(t, tt.prefix, v.Prefix())

			back, err := id.ParseAs(v.String(), tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, v.String(), back.String())
		})
	}
}

func TestParseEventIDRejectsOtherKinds(t *testing.T) {
	_, err := id.ParseEventID(id.NewMintID().String())
	assert.ErrorIs(t, err, id.ErrPrefixMismatch)
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not-a-typeid", "evt_!!!"} {
		_, err := id.Parse(s)
		assert.Error(t, err, s)
	}
}

func TestNil(t *testing.T) {
	var v id.ID
	assert.True(t, v.IsNil())
	assert.Empty(t, v.String())
	assert.Empty(t, v.Prefix())

	dv, err := v.Value()
	require.NoError(t, err)
	assert.Nil(t, dv)
}

func TestScan(t *testing.T) {
	orig := id.NewEventID()

	var s id.ID
	require.NoError(t, s.Scan(orig.String()))
	assert.Equal(t, orig.String(), s.String())

	var b id.ID
	require.NoError(t, b.Scan([]byte(orig.String())))
	assert.Equal(t, orig.String(), b.String())

	var n id.ID
	require.NoError(t, n.Scan(nil))
	assert.True(t, n.IsNil())

	var bad id.ID
	assert.Error(t, bad.Scan(42))
}

func TestJSON(t *testing.T) {
	type rec struct {
		ID id.ID `json:"id"`
	}
	orig := rec{ID: id.NewTransferID()}
	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	var got rec
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, orig.ID.String(), got.ID.String())
}
