package position

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTradeStateValidate(t *testing.T) {
	valid := TradeState{
		Symbol:     "BTC/USDT",
		Side:       SideLong,
		Size:       dec("0.5"),
		EntryPrice: dec("50000"),
		Timestamp:  1700000000,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*TradeState)
	}{
		{"empty symbol", func(ts *TradeState) { ts.Symbol = "" }},
		{"invalid side", func(ts *TradeState) { ts.Side = "sideways" }},
		{"zero size", func(ts *TradeState) { ts.Size = decimal.Zero }},
		{"negative size", func(ts *TradeState) { ts.Size = dec("-1") }},
		{"zero entry price", func(ts *TradeState) { ts.EntryPrice = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := valid
			tt.mutate(&ts)
			assert.Error(t, ts.Validate())
		})
	}
}

func TestPnLSideAware(t *testing.T) {
	// Long: (exit - entry) * size.
	pnl := PnL(SideLong, dec("100"), dec("110"), dec("2"))
	assert.True(t, pnl.Equal(dec("20")), "long gain: got %s", pnl)

	pnl = PnL(SideLong, dec("100"), dec("90"), dec("2"))
	assert.True(t, pnl.Equal(dec("-20")), "long loss: got %s", pnl)

	// Short: (entry - exit) * size, size always a positive magnitude.
	pnl = PnL(SideShort, dec("100"), dec("90"), dec("2"))
	assert.True(t, pnl.Equal(dec("20")), "short gain: got %s", pnl)

	pnl = PnL(SideShort, dec("100"), dec("110"), dec("2"))
	assert.True(t, pnl.Equal(dec("-20")), "short loss: got %s", pnl)
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideShort, SideLong.Opposite())
	assert.Equal(t, SideLong, SideShort.Opposite())
}

func TestWireFormatUsesDecimalStrings(t *testing.T) {
	ts := TradeState{
		Symbol:     "ETH/USDT",
		Side:       SideShort,
		Size:       dec("1.25"),
		EntryPrice: dec("3000.10"),
		Timestamp:  1700000000.5,
	}
	data, err := json.Marshal(ts)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// Financial fields must serialize as strings, never native floats.
	assert.Equal(t, "1.25", raw["size"])
	assert.Equal(t, "3000.1", raw["entry_price"])
	assert.Equal(t, "short", raw["side"])
	assert.Equal(t, 1700000000.5, raw["timestamp"])

	var back TradeState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Size.Equal(ts.Size))
	assert.True(t, back.EntryPrice.Equal(ts.EntryPrice))
}
