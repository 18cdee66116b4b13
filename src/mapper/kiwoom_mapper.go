package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/externalmodel"
	"autotrader/src/model"
	"autotrader/src/utils"
)

// ParseSignedInt reads Kiwoom numeric strings such as "+00070000",
// "-1500" or "1,234". Empty input is zero.
func ParseSignedInt(v string) (int64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
	if s == "" {
		return 0, nil
	}
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	if neg {
		n = -n
	}
	return n, nil
}

// ParseSignedFloat is ParseSignedInt for rates such as "+3.25".
func ParseSignedFloat(v string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	return f, nil
}

func intSafe(field, v string) int64 {
	n, err := ParseSignedInt(v)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Error("Failed to parse integer from Kiwoom field; defaulting to 0")
		return 0
	}
	return n
}

func absInt(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// NormalizeStockCode strips the "A" prefix Kiwoom puts on KRX codes.
func NormalizeStockCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 7 && (code[0] == 'A' || code[0] == 'a') {
		return code[1:]
	}
	return code
}

// ToAccountSnapshot converts a kt00004 response. Lines with no remaining
// quantity are dropped.
func ToAccountSnapshot(resp *externalmodel.AccountEvaluationResponse) *model.AccountSnapshot {
	if resp == nil {
		return &model.AccountSnapshot{}
	}
	snap := &model.AccountSnapshot{
		Deposit:   intSafe("entr", resp.Deposit),
		D2Deposit: intSafe("d2_entra", resp.D2Deposit),
	}
	for _, h := range resp.Holdings {
		qty := intSafe("rmnd_qty", h.Quantity)
		if qty <= 0 {
			continue
		}
		snap.Holdings = append(snap.Holdings, model.Holding{
			StockCode:      NormalizeStockCode(h.StockCode),
			StockName:      strings.TrimSpace(h.StockName),
			Quantity:       qty,
			AvgPrice:       absInt(intSafe("avg_prc", h.AvgPrice)),
			CurrentPrice:   absInt(intSafe("cur_prc", h.CurrentPrice)),
			PurchaseAmount: absInt(intSafe("pur_amt", h.PurchaseAmount)),
		})
	}
	return snap
}

// ToCandles converts chart rows (newest first on the wire) into ascending
// candles. Kiwoom signs prices with the day's direction, so magnitudes are
// taken. Rows with an unreadable timestamp are skipped.
func ToCandles(bars []externalmodel.ChartBar) []model.Candle {
	out := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		stamp := b.Time
		if stamp == "" {
			stamp = b.Date
		}
		ts, err := utils.ParseBrokerTime(stamp)
		if err != nil {
			logger.WithField("value", stamp).WithError(err).Debug("Skipping chart row with bad timestamp")
			continue
		}
		out = append(out, model.Candle{
			Time:   ts,
			Open:   float64(absInt(intSafe("open_pric", b.Open))),
			High:   float64(absInt(intSafe("high_pric", b.High))),
			Low:    float64(absInt(intSafe("low_pric", b.Low))),
			Close:  float64(absInt(intSafe("cur_prc", b.Close))),
			Volume: float64(absInt(intSafe("trde_qty", b.Volume))),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// ToConditionScreens converts CNSRLST data rows of [seq, name].
func ToConditionScreens(rows [][]string) []model.ConditionScreen {
	out := make([]model.ConditionScreen, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, model.ConditionScreen{
			Seq:  strings.TrimSpace(r[0]),
			Name: strings.TrimSpace(r[1]),
		})
	}
	return out
}

// ToConditionMatches converts CNSRREQ data rows keyed by FID.
func ToConditionMatches(rows []map[string]string) ([]model.ConditionMatch, error) {
	out := make([]model.ConditionMatch, 0, len(rows))
	for i, r := range rows {
		code := NormalizeStockCode(r["9001"])
		if code == "" {
			return nil, fmt.Errorf("condition row %d: missing stock code", i)
		}
		rate, err := ParseSignedFloat(r["12"])
		if err != nil {
			rate = 0
		}
		out = append(out, model.ConditionMatch{
			StockCode:  code,
			StockName:  strings.TrimSpace(r["302"]),
			Price:      absInt(intSafe("10", r["10"])),
			Change:     intSafe("11", r["11"]),
			ChangeRate: rate,
			Volume:     absInt(intSafe("13", r["13"])),
		})
	}
	return out, nil
}
