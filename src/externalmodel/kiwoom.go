package externalmodel

import "encoding/json"

// Kiwoom REST and socket payloads. Numbers arrive as strings, often signed
// and zero padded ("+00070000"); src/mapper turns them into model types.

// KiwoomHeader is embedded in every REST response.
type KiwoomHeader struct {
	ReturnCode int    `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
}

// ----- OAuth -----

type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	AppKey       string `json:"appkey"`
	SecretKey    string `json:"secretkey"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type TokenResponse struct {
	KiwoomHeader
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresDt string `json:"expires_dt"`
}

type RevokeRequest struct {
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
	Token     string `json:"token"`
}

// ----- account (kt00004) -----

type AccountEvaluationRequest struct {
	QueryType    string `json:"qry_tp"`
	DomesticExch string `json:"dmst_stex_tp"`
}

type AccountEvaluationResponse struct {
	KiwoomHeader
	Deposit   string           `json:"entr"`
	D2Deposit string           `json:"d2_entra"`
	Holdings  []AccountHolding `json:"stk_acnt_evlt_prst"`
}

type AccountHolding struct {
	StockCode      string `json:"stk_cd"`
	StockName      string `json:"stk_nm"`
	Quantity       string `json:"rmnd_qty"`
	AvgPrice       string `json:"avg_prc"`
	CurrentPrice   string `json:"cur_prc"`
	PurchaseAmount string `json:"pur_amt"`
}

// ----- quote (ka10001) -----

type StockCodeRequest struct {
	StockCode string `json:"stk_cd"`
}

type StockInfoResponse struct {
	KiwoomHeader
	StockCode    string `json:"stk_cd"`
	StockName    string `json:"stk_nm"`
	CurrentPrice string `json:"cur_prc"`
}

// ----- orders (kt10000 buy, kt10001 sell) -----

type OrderRequest struct {
	DomesticExch string `json:"dmst_stex_tp"`
	StockCode    string `json:"stk_cd"`
	Quantity     string `json:"ord_qty"`
	UnitPrice    string `json:"ord_uv"`
	TradeType    string `json:"trde_tp"`
	CondPrice    string `json:"cond_uv"`
}

type OrderResponse struct {
	KiwoomHeader
	OrderNo string `json:"ord_no"`
}

// ----- charts (ka10080 minute, ka10081 daily) -----

type MinuteChartRequest struct {
	StockCode   string `json:"stk_cd"`
	TickScope   string `json:"tic_scope"`
	AdjustPrice string `json:"upd_stkpc_tp"`
}

type DailyChartRequest struct {
	StockCode   string `json:"stk_cd"`
	BaseDate    string `json:"base_dt"`
	AdjustPrice string `json:"upd_stkpc_tp"`
}

type ChartBar struct {
	Time   string `json:"cntr_tm,omitempty"`
	Date   string `json:"dt,omitempty"`
	Open   string `json:"open_pric"`
	High   string `json:"high_pric"`
	Low    string `json:"low_pric"`
	Close  string `json:"cur_prc"`
	Volume string `json:"trde_qty"`
}

type MinuteChartResponse struct {
	KiwoomHeader
	StockCode string     `json:"stk_cd"`
	Bars      []ChartBar `json:"stk_min_pole_chart_qry"`
}

type DailyChartResponse struct {
	KiwoomHeader
	StockCode string     `json:"stk_cd"`
	Bars      []ChartBar `json:"stk_dt_pole_chart_qry"`
}

// ----- socket frames -----

const (
	TrnmLogin      = "LOGIN"
	TrnmPing       = "PING"
	TrnmCondList   = "CNSRLST"
	TrnmCondSearch = "CNSRREQ"
	TrnmCondClear  = "CNSRCLR"
	TrnmReal       = "REAL"
)

// WSFrame is the envelope every socket frame shares.
type WSFrame struct {
	Trnm       string          `json:"trnm"`
	ReturnCode *int            `json:"return_code,omitempty"`
	ReturnMsg  string          `json:"return_msg,omitempty"`
	Seq        string          `json:"seq,omitempty"`
	ContYn     string          `json:"cont_yn,omitempty"`
	NextKey    string          `json:"next_key,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type WSLoginRequest struct {
	Trnm  string `json:"trnm"`
	Token string `json:"token"`
}

type WSConditionListRequest struct {
	Trnm string `json:"trnm"`
}

type WSConditionSearchRequest struct {
	Trnm       string `json:"trnm"`
	Seq        string `json:"seq"`
	SearchType string `json:"search_type"`
	StockExch  string `json:"stex_tp"`
	ContYn     string `json:"cont_yn"`
	NextKey    string `json:"next_key"`
}
