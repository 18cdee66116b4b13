package model

// Holding is one line of the broker account evaluation.
type Holding struct {
	StockCode      string `json:"stock_code"`
	StockName      string `json:"stock_name"`
	Quantity       int64  `json:"quantity"`
	AvgPrice       int64  `json:"avg_price"`
	CurrentPrice   int64  `json:"current_price"`
	PurchaseAmount int64  `json:"purchase_amount"`
}

// AccountSnapshot is cash plus holdings at one point in time.
type AccountSnapshot struct {
	Deposit   int64     `json:"deposit"`
	D2Deposit int64     `json:"d2_deposit"`
	Holdings  []Holding `json:"holdings"`
}

// AvailableCash prefers the same-day deposit and falls back to D+2.
func (s *AccountSnapshot) AvailableCash() int64 {
	if s == nil {
		return 0
	}
	if s.Deposit > 0 {
		return s.Deposit
	}
	return s.D2Deposit
}

// Holding returns the holding for a stock, or nil.
func (s *AccountSnapshot) Holding(stockCode string) *Holding {
	if s == nil {
		return nil
	}
	for i := range s.Holdings {
		if s.Holdings[i].StockCode == stockCode {
			return &s.Holdings[i]
		}
	}
	return nil
}

// OrderResult is the broker acknowledgement of an order.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}
