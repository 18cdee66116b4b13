package tp_sl

import (
	"testing"

	"autotrader/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProfitLoss(t *testing.T) {
	pl, rate := ProfitLoss(10_000, 10_550, 7)
	require.Equal(t, int64(3_850), pl)
	require.True(t, rate.Equal(d("5.5")), "rate=%s", rate)

	pl, rate = ProfitLoss(0, 100, 1)
	require.Equal(t, int64(100), pl)
	require.True(t, rate.IsZero())
}

func TestEvaluate_StopLossBoundary(t *testing.T) {
	in := Inputs{BuyPrice: 10_000, Quantity: 10, StopLossRate: 5, TakeProfitRate: 10}

	in.CurrentPrice = 9_500
	dec := Evaluate(in)
	require.True(t, dec.Exit)
	require.Equal(t, model.SellReasonStopLoss, dec.Reason)
	require.Equal(t, int64(-5_000), dec.ProfitLoss)
	require.Equal(t, -5.0, dec.ProfitRateFloat())

	in.CurrentPrice = 9_501
	dec = Evaluate(in)
	require.False(t, dec.Exit)
	require.Empty(t, dec.Reason)
}

func TestEvaluate_TakeProfitBoundary(t *testing.T) {
	in := Inputs{BuyPrice: 10_000, Quantity: 3, StopLossRate: 5, TakeProfitRate: 10}

	in.CurrentPrice = 11_000
	dec := Evaluate(in)
	require.True(t, dec.Exit)
	require.Equal(t, model.SellReasonTakeProfit, dec.Reason)
	require.Equal(t, int64(3_000), dec.ProfitLoss)

	in.CurrentPrice = 10_999
	require.False(t, Evaluate(in).Exit)
}

func TestEvaluate_NoQuote(t *testing.T) {
	dec := Evaluate(Inputs{BuyPrice: 10_000, CurrentPrice: 0, Quantity: 1, StopLossRate: 5, TakeProfitRate: 10})
	require.False(t, dec.Exit)
}

func TestEvaluate_FractionalRates(t *testing.T) {
	// 2.5% stop on 7,130: 6,951.75 is the exact trigger, 6,951 is below it
	in := Inputs{BuyPrice: 7_130, CurrentPrice: 6_951, Quantity: 1, StopLossRate: 2.5, TakeProfitRate: 10}
	require.True(t, Evaluate(in).Exit)
	in.CurrentPrice = 6_952
	require.False(t, Evaluate(in).Exit)
}

func TestTriggerPrices(t *testing.T) {
	stop, take := TriggerPrices(70_000, 5, 10)
	require.Equal(t, int64(66_500), stop)
	require.Equal(t, int64(77_000), take)

	stop, take = TriggerPrices(7_130, 2.5, 10)
	require.Equal(t, int64(6_951), stop)
	require.Equal(t, int64(7_843), take)
}
