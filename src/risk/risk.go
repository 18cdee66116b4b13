package risk

import (
	"time"

	"autotrader/src/utils"

	"github.com/shopspring/decimal"
)

// ----- session labels -----

type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionPreMarket      Session = "pre_market"
	SessionRegular        Session = "regular"
	SessionAfterHours     Session = "after_hours"

	DefaultMaxQuantity = int64(1000)
)

// Regular KRX session, KST, both ends inclusive.
const (
	openHour    = 9
	openMinute  = 0
	closeHour   = 15
	closeMinute = 30
)

// ----- public API -----

// DetectSession classifies t on the KRX calendar.
func DetectSession(t time.Time) Session {
	k := t.In(utils.KST)
	if k.Weekday() == time.Saturday || k.Weekday() == time.Sunday || isHoliday(k) {
		return SessionWeekendHoliday
	}

	minutes := k.Hour()*60 + k.Minute()
	open := openHour*60 + openMinute
	closing := closeHour*60 + closeMinute

	switch {
	case minutes < open:
		return SessionPreMarket
	case minutes > closing:
		return SessionAfterHours
	default:
		return SessionRegular
	}
}

// IsMarketOpen reports whether t falls in the regular session.
func IsMarketOpen(t time.Time) bool {
	return DetectSession(t) == SessionRegular
}

// CalculateQuantity sizes a buy: floor(maxInvest / price), capped at
// maxQuantity. Zero means the stock is too expensive for the budget.
func CalculateQuantity(maxInvest, price, maxQuantity int64) int64 {
	if maxInvest <= 0 || price <= 0 {
		return 0
	}
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxQuantity
	}

	qty := decimal.NewFromInt(maxInvest).
		Div(decimal.NewFromInt(price)).
		Floor().
		IntPart()

	if qty < 1 {
		return 0
	}
	if qty > maxQuantity {
		return maxQuantity
	}
	return qty
}

// ----- helpers -----

// isHoliday covers the fixed-date KRX closures. Lunar holidays (Seollal,
// Chuseok, Buddha's birthday) move every year and are not listed.
func isHoliday(t time.Time) bool {
	year := t.Year()
	holidays := []time.Time{
		krDate(year, time.January, 1),   // New Year
		krDate(year, time.March, 1),     // Independence Movement Day
		krDate(year, time.May, 1),       // Labour Day
		krDate(year, time.May, 5),       // Children's Day
		krDate(year, time.June, 6),      // Memorial Day
		krDate(year, time.August, 15),   // Liberation Day
		krDate(year, time.October, 3),   // National Foundation Day
		krDate(year, time.October, 9),   // Hangul Day
		krDate(year, time.December, 25), // Christmas
		krDate(year, time.December, 31), // year-end closing
	}
	return isDateAmong(t, holidays)
}

func krDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, utils.KST)
}

// isDateAmong checks if the given date matches any date in the list.
func isDateAmong(t time.Time, dates []time.Time) bool {
	day := utils.TradingDay(t)
	for _, d := range dates {
		if utils.TradingDay(d) == day {
			return true
		}
	}
	return false
}
