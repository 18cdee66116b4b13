package tp_sl

import (
	"fmt"

	"autotrader/src/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Inputs describe a held position at the latest quote. Rates are percents.
type Inputs struct {
	BuyPrice       int64
	CurrentPrice   int64
	Quantity       int64
	StopLossRate   float64
	TakeProfitRate float64
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Exit       bool
	Reason     string // model.SellReason*
	Detail     string
	ProfitLoss int64
	ProfitRate decimal.Decimal
}

// ProfitRateFloat is ProfitRate rounded to 4 places.
func (d Decision) ProfitRateFloat() float64 {
	f, _ := d.ProfitRate.Round(4).Float64()
	return f
}

// ProfitLoss returns (current - buy) * qty and (current - buy) / buy * 100.
func ProfitLoss(buyPrice, currentPrice, quantity int64) (int64, decimal.Decimal) {
	diff := decimal.NewFromInt(currentPrice - buyPrice)
	pl := diff.Mul(decimal.NewFromInt(quantity)).IntPart()
	if buyPrice <= 0 {
		return pl, decimal.Zero
	}
	rate := diff.Div(decimal.NewFromInt(buyPrice)).Mul(hundred)
	return pl, rate
}

// Evaluate applies the exit policy. Stop loss fires at rate <= -StopLossRate,
// take profit at rate >= TakeProfitRate; the boundaries are inclusive.
func Evaluate(in Inputs) Decision {
	pl, rate := ProfitLoss(in.BuyPrice, in.CurrentPrice, in.Quantity)
	d := Decision{ProfitLoss: pl, ProfitRate: rate}

	if in.BuyPrice <= 0 || in.CurrentPrice <= 0 {
		return d
	}

	stop := decimal.NewFromFloat(in.StopLossRate).Neg()
	take := decimal.NewFromFloat(in.TakeProfitRate)

	switch {
	case in.StopLossRate > 0 && rate.LessThanOrEqual(stop):
		d.Exit = true
		d.Reason = model.SellReasonStopLoss
		d.Detail = fmt.Sprintf("loss %s%% reached stop loss -%s%%", rate.StringFixed(2), pct(in.StopLossRate))
	case in.TakeProfitRate > 0 && rate.GreaterThanOrEqual(take):
		d.Exit = true
		d.Reason = model.SellReasonTakeProfit
		d.Detail = fmt.Sprintf("gain %s%% reached take profit %s%%", rate.StringFixed(2), pct(in.TakeProfitRate))
	}
	return d
}

// TriggerPrices returns the quotes at which stop loss and take profit fire.
// They are informational; Evaluate compares rates.
func TriggerPrices(buyPrice int64, stopLossRate, takeProfitRate float64) (stopPrice, takePrice int64) {
	buy := decimal.NewFromInt(buyPrice)
	stopPrice = buy.Mul(hundred.Sub(decimal.NewFromFloat(stopLossRate))).Div(hundred).Floor().IntPart()
	takePrice = buy.Mul(hundred.Add(decimal.NewFromFloat(takeProfitRate))).Div(hundred).Ceil().IntPart()
	return stopPrice, takePrice
}

func pct(rate float64) string {
	return decimal.NewFromFloat(rate).String()
}
