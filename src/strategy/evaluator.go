package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"autotrader/src/model"

	"github.com/sirupsen/logrus"
)

// MinBars is the shortest history worth evaluating at all.
const MinBars = 30

var ErrInsufficientData = errors.New("insufficient bars for strategy")

// Result is a crossover detected on the most recent bar.
type Result struct {
	Side    string             `json:"side"`
	Price   float64            `json:"price"`
	Value   float64            `json:"value"`
	Details map[string]float64 `json:"details"`
	BarTime time.Time          `json:"bar_time"`
}

// Evaluator runs the built-in indicators over ascending bars. A signal only
// fires when the indicator crosses its level between the previous and the
// latest bar; sitting beyond a level emits nothing.
type Evaluator struct {
	logger *logrus.Entry
}

func NewEvaluator(logger *logrus.Entry) *Evaluator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Evaluator{logger: logger}
}

// Evaluate returns (nil, nil) when nothing crossed.
func (e *Evaluator) Evaluate(strategyType string, rawParams []byte, bars []model.Candle) (*Result, error) {
	strategyType = strings.ToUpper(strategyType)
	params, err := decodeParameters(strategyType, rawParams)
	if err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}

	var res *Result
	switch p := params.(type) {
	case *MomentumParams:
		res, err = evalMomentum(bars, p)
	case *DisparityParams:
		res, err = evalDisparity(bars, p)
	case *BollingerParams:
		res, err = evalBollinger(bars, p)
	case *RSIParams:
		res, err = evalRSI(bars, p)
	case *IchimokuParams:
		res, err = evalIchimoku(bars, p)
	case *ChaikinParams:
		res, err = evalChaikin(bars, p)
	default:
		return nil, fmt.Errorf("no evaluator for %s", strategyType)
	}
	if err != nil {
		return nil, err
	}

	if res != nil {
		last := bars[len(bars)-1]
		res.Price = last.Close
		res.BarTime = last.Time
		e.logger.WithFields(logrus.Fields{
			"strategy": strategyType,
			"side":     res.Side,
			"value":    res.Value,
			"price":    res.Price,
		}).Info("strategy crossover detected")
	}
	return res, nil
}

func lastTwo(series []float64) (prev, cur float64) {
	n := len(series)
	return series[n-2], series[n-1]
}

func evalMomentum(bars []model.Candle, p *MomentumParams) (*Result, error) {
	if p.MomentumPeriod <= 0 || len(bars) < p.MomentumPeriod+max(p.TrendConfirmationDays, 1) {
		return nil, ErrInsufficientData
	}
	prev, cur := lastTwo(Momentum(closes(bars), p.MomentumPeriod))
	details := map[string]float64{"momentum": cur, "prev_momentum": prev}

	switch {
	case crossedAbove(prev, cur, 0):
		return &Result{Side: model.SignalSideBuy, Value: cur, Details: details}, nil
	case crossedBelow(prev, cur, 0):
		return &Result{Side: model.SignalSideSell, Value: cur, Details: details}, nil
	}
	return nil, nil
}

func evalDisparity(bars []model.Candle, p *DisparityParams) (*Result, error) {
	if p.MAPeriod <= 0 || len(bars) < p.MAPeriod+1 {
		return nil, ErrInsufficientData
	}
	c := closes(bars)
	ma := SMA(c, p.MAPeriod)
	n := len(c)
	prev := c[n-2] / ma[n-2] * 100
	cur := c[n-1] / ma[n-1] * 100
	details := map[string]float64{"disparity": cur, "prev_disparity": prev, "ma": ma[n-1]}

	switch {
	case crossedBelow(prev, cur, p.BuyThreshold):
		return &Result{Side: model.SignalSideBuy, Value: cur, Details: details}, nil
	case crossedAbove(prev, cur, p.SellThreshold):
		return &Result{Side: model.SignalSideSell, Value: cur, Details: details}, nil
	}
	return nil, nil
}

func evalBollinger(bars []model.Candle, p *BollingerParams) (*Result, error) {
	if p.MAPeriod < 2 || len(bars) < p.MAPeriod+1 {
		return nil, ErrInsufficientData
	}
	c := closes(bars)
	ma := SMA(c, p.MAPeriod)
	std := RollingStd(c, p.MAPeriod)
	n := len(c)
	upper := func(i int) float64 { return ma[i] + p.StdMultiplier*std[i] }
	lower := func(i int) float64 { return ma[i] - p.StdMultiplier*std[i] }

	details := map[string]float64{
		"upper":  upper(n - 1),
		"middle": ma[n-1],
		"lower":  lower(n - 1),
	}
	value := 0.0
	if w := upper(n-1) - lower(n-1); w != 0 {
		value = (c[n-1] - lower(n-1)) / w
	}

	switch {
	case c[n-1] <= lower(n-1) && c[n-2] > lower(n-2):
		return &Result{Side: model.SignalSideBuy, Value: value, Details: details}, nil
	case c[n-1] >= upper(n-1) && c[n-2] < upper(n-2):
		return &Result{Side: model.SignalSideSell, Value: value, Details: details}, nil
	}
	return nil, nil
}

func evalRSI(bars []model.Candle, p *RSIParams) (*Result, error) {
	if p.RSIPeriod <= 0 || len(bars) < p.RSIPeriod+2 {
		return nil, ErrInsufficientData
	}
	prev, cur := lastTwo(RSI(closes(bars), p.RSIPeriod))
	details := map[string]float64{"rsi": cur, "prev_rsi": prev}

	var side string
	switch {
	case crossedAbove(prev, cur, p.OversoldThreshold):
		side = model.SignalSideBuy
	case crossedBelow(prev, cur, p.OverboughtThreshold):
		side = model.SignalSideSell
	default:
		return nil, nil
	}

	if p.UseVolumeFilter {
		vols := volumes(bars)
		n := len(vols)
		avg := WeightedAverageVolume(vols, n-1, p.VolumePeriod)
		if math.IsNaN(avg) || avg <= 0 {
			return nil, nil
		}
		ratio := vols[n-1] / avg
		details["volume_ratio"] = ratio
		if ratio < p.VolumeThreshold {
			return nil, nil
		}
	}
	return &Result{Side: side, Value: cur, Details: details}, nil
}

func evalIchimoku(bars []model.Candle, p *IchimokuParams) (*Result, error) {
	if p.ConversionPeriod <= 0 || p.BasePeriod <= 0 || len(bars) < p.BasePeriod+1 {
		return nil, ErrInsufficientData
	}
	conv := midpoint(bars, p.ConversionPeriod)
	base := midpoint(bars, p.BasePeriod)
	spanB := midpoint(bars, p.SpanBPeriod)
	n := len(bars)
	price := bars[n-1].Close

	// Spans are plotted displacement bars ahead, so the cloud under the
	// latest bar comes from displacement bars ago.
	cloudTop, cloudBottom := price, price
	if src := n - 1 - p.Displacement; src >= 0 {
		a := (conv[src] + base[src]) / 2
		b := spanB[src]
		if !math.IsNaN(a) && !math.IsNaN(b) {
			cloudTop = math.Max(a, b)
			cloudBottom = math.Min(a, b)
		}
	}

	prevDiff := conv[n-2] - base[n-2]
	curDiff := conv[n-1] - base[n-1]
	details := map[string]float64{
		"conversion":   conv[n-1],
		"base":         base[n-1],
		"cloud_top":    cloudTop,
		"cloud_bottom": cloudBottom,
	}

	switch {
	case crossedAbove(prevDiff, curDiff, 0) && price > cloudTop:
		return &Result{Side: model.SignalSideBuy, Value: curDiff, Details: details}, nil
	case crossedBelow(prevDiff, curDiff, 0) && price < cloudBottom:
		return &Result{Side: model.SignalSideSell, Value: curDiff, Details: details}, nil
	}
	return nil, nil
}

func evalChaikin(bars []model.Candle, p *ChaikinParams) (*Result, error) {
	if p.ShortPeriod <= 0 || p.LongPeriod <= 0 || len(bars) < p.LongPeriod+1 {
		return nil, ErrInsufficientData
	}
	prev, cur := lastTwo(ChaikinOscillator(bars, p.ShortPeriod, p.LongPeriod))
	details := map[string]float64{"oscillator": cur, "prev_oscillator": prev}

	switch {
	case crossedAbove(prev, cur, p.BuyThreshold):
		return &Result{Side: model.SignalSideBuy, Value: cur, Details: details}, nil
	case crossedBelow(prev, cur, p.SellThreshold):
		return &Result{Side: model.SignalSideSell, Value: cur, Details: details}, nil
	}
	return nil, nil
}
