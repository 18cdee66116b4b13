package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/externalmodel"
	"autotrader/src/mapper"
	"autotrader/src/model"
	"autotrader/src/utils"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

const (
	APIAccountEvaluation = "kt00004"
	APIStockInfo         = "ka10001"
	APIBuyOrder          = "kt10000"
	APISellOrder         = "kt10001"
	APIMinuteChart       = "ka10080"
	APIDailyChart        = "ka10081"
)

const (
	pathAccount   = "/api/dostk/acnt"
	pathStockInfo = "/api/dostk/stkinfo"
	pathOrder     = "/api/dostk/ordr"
	pathChart     = "/api/dostk/chart"
)

const (
	exchangeKRX     = "KRX"
	tradeTypeMarket = "3"
)

// -----------------------------
// ERRORS
// -----------------------------

// ErrRateLimited is returned when the governor refuses a call or the broker
// throttles it.
var ErrRateLimited = errors.New("broker rate limited")

// ErrBroker is the sentinel behind every BrokerError.
var ErrBroker = errors.New("broker rejected request")

// BrokerError is a non-zero return_code.
type BrokerError struct {
	APIID string
	Code  int
	Msg   string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("%s: return_code %d (%s): %s", e.APIID, e.Code, GetErrorMsg(e.Code), e.Msg)
}

func (e *BrokerError) Unwrap() error { return ErrBroker }

// -----------------------------
// DEPENDENCIES
// -----------------------------

// TokenSource hands out a bearer token valid for the next call.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// CallGovernor admits and records broker calls.
type CallGovernor interface {
	IsAvailable() bool
	RecordCall(api string) bool
	HandleError(err error) bool
}

// -----------------------------
// CLIENT
// -----------------------------
type KiwoomClient struct {
	baseURL  string
	http     *resty.Client
	tokens   TokenSource
	governor CallGovernor
}

func isOrderAPI(apiID string) bool {
	return apiID == APIBuyOrder || apiID == APISellOrder
}

// isRetryableResp never replays orders or throttled calls; an order that
// timed out may already be live at the broker.
func isRetryableResp(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && isOrderAPI(r.Request.Header.Get("api-id")) {
		return false
	}
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code == http.StatusTooManyRequests {
		return false
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return code == http.StatusRequestTimeout
}

func NewKiwoomClient(cfg Config, tokens TokenSource, governor CallGovernor) *KiwoomClient {
	baseURL := strings.TrimRight(cfg.BaseURL(), "/")
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &KiwoomClient{
		baseURL:  baseURL,
		http:     httpClient,
		tokens:   tokens,
		governor: governor,
	}
}

// doRequest posts body to path with the Kiwoom headers and decodes the
// reply into out. Every call goes through the governor first.
func (c *KiwoomClient) doRequest(ctx context.Context, apiID, path string, body, out interface{}) error {
	if c.governor != nil && !c.governor.IsAvailable() {
		return fmt.Errorf("%w: %s refused by governor", ErrRateLimited, apiID)
	}

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("%s: token: %w", apiID, err)
	}

	if c.governor != nil && !c.governor.RecordCall(apiID) {
		return fmt.Errorf("%w: %s exceeded call budget", ErrRateLimited, apiID)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetHeader("api-id", apiID).
		SetHeader("authorization", "Bearer "+token).
		SetHeader("cont-yn", "N").
		SetHeader("next-key", "").
		SetBody(body).
		Post(path)
	if err != nil {
		c.reportError(err)
		return fmt.Errorf("%s request failed: %w", apiID, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		err := fmt.Errorf("%w: %s HTTP 429", ErrRateLimited, apiID)
		c.reportError(err)
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		err := fmt.Errorf("%s HTTP %d: %s", apiID, resp.StatusCode(), strings.TrimSpace(resp.String()))
		c.reportError(err)
		return err
	}

	var header externalmodel.KiwoomHeader
	if err := json.Unmarshal(resp.Body(), &header); err != nil {
		return fmt.Errorf("%s decode header: %w", apiID, err)
	}
	if header.ReturnCode != 0 {
		berr := &BrokerError{APIID: apiID, Code: header.ReturnCode, Msg: header.ReturnMsg}
		logger.WithFields(map[string]interface{}{
			"component":   "kiwoom",
			"api_id":      apiID,
			"return_code": header.ReturnCode,
		}).Warn(header.ReturnMsg)
		if header.ReturnCode == RateLimitReturnCode {
			c.reportError(fmt.Errorf("%w: %v", ErrRateLimited, berr))
			return fmt.Errorf("%w: %w", ErrRateLimited, berr)
		}
		if !c.reportError(berr) {
			return fmt.Errorf("%w: %w", ErrRateLimited, berr)
		}
		return berr
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%s decode body: %w", apiID, err)
		}
	}
	return nil
}

func (c *KiwoomClient) reportError(err error) bool {
	if c.governor == nil {
		return true
	}
	return c.governor.HandleError(err)
}

// -----------------------------
// ACCOUNT / QUOTES
// -----------------------------

// GetAccountSnapshot returns deposits and holdings (kt00004).
func (c *KiwoomClient) GetAccountSnapshot(ctx context.Context) (*model.AccountSnapshot, error) {
	var out externalmodel.AccountEvaluationResponse
	req := externalmodel.AccountEvaluationRequest{QueryType: "0", DomesticExch: exchangeKRX}
	if err := c.doRequest(ctx, APIAccountEvaluation, pathAccount, req, &out); err != nil {
		return nil, err
	}
	return mapper.ToAccountSnapshot(&out), nil
}

// GetCurrentPrice returns the last traded price (ka10001). A zero or
// missing price is an error.
func (c *KiwoomClient) GetCurrentPrice(ctx context.Context, stockCode string) (int64, error) {
	var out externalmodel.StockInfoResponse
	req := externalmodel.StockCodeRequest{StockCode: stockCode}
	if err := c.doRequest(ctx, APIStockInfo, pathStockInfo, req, &out); err != nil {
		return 0, err
	}
	price, err := mapper.ParseSignedInt(out.CurrentPrice)
	if err != nil {
		return 0, fmt.Errorf("%s cur_prc: %w", APIStockInfo, err)
	}
	if price < 0 {
		price = -price
	}
	if price == 0 {
		return 0, fmt.Errorf("%s: no price for %s", APIStockInfo, stockCode)
	}
	return price, nil
}

// -----------------------------
// ORDERS
// -----------------------------

// PlaceBuyOrder sends a market buy (kt10000).
func (c *KiwoomClient) PlaceBuyOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error) {
	return c.placeOrder(ctx, APIBuyOrder, stockCode, quantity)
}

// PlaceSellOrder sends a market sell (kt10001).
func (c *KiwoomClient) PlaceSellOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error) {
	return c.placeOrder(ctx, APISellOrder, stockCode, quantity)
}

func (c *KiwoomClient) placeOrder(ctx context.Context, apiID, stockCode string, quantity int64) (*model.OrderResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%s: quantity must be positive, got %d", apiID, quantity)
	}

	req := externalmodel.OrderRequest{
		DomesticExch: exchangeKRX,
		StockCode:    stockCode,
		Quantity:     strconv.FormatInt(quantity, 10),
		UnitPrice:    "",
		TradeType:    tradeTypeMarket,
		CondPrice:    "",
	}

	var out externalmodel.OrderResponse
	if err := c.doRequest(ctx, apiID, pathOrder, req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.OrderNo) == "" {
		return nil, fmt.Errorf("%s: broker returned no order number", apiID)
	}

	logger.WithFields(map[string]interface{}{
		"component": "kiwoom",
		"api_id":    apiID,
		"stock":     stockCode,
		"qty":       quantity,
		"order_no":  out.OrderNo,
	}).Info("Order accepted")

	return &model.OrderResult{OrderID: out.OrderNo, Message: out.ReturnMsg}, nil
}

// -----------------------------
// CHARTS
// -----------------------------

// GetMinuteBars returns ascending minute candles (ka10080). tickScope is
// the bar width in minutes.
func (c *KiwoomClient) GetMinuteBars(ctx context.Context, stockCode string, tickScope int) ([]model.Candle, error) {
	if tickScope <= 0 {
		tickScope = 1
	}
	var out externalmodel.MinuteChartResponse
	req := externalmodel.MinuteChartRequest{
		StockCode:   stockCode,
		TickScope:   strconv.Itoa(tickScope),
		AdjustPrice: "1",
	}
	if err := c.doRequest(ctx, APIMinuteChart, pathChart, req, &out); err != nil {
		return nil, err
	}
	return mapper.ToCandles(out.Bars), nil
}

// GetDailyBars returns ascending daily candles up to baseDate (ka10081).
func (c *KiwoomClient) GetDailyBars(ctx context.Context, stockCode string, baseDate time.Time) ([]model.Candle, error) {
	var out externalmodel.DailyChartResponse
	req := externalmodel.DailyChartRequest{
		StockCode:   stockCode,
		BaseDate:    baseDate.In(utils.KST).Format("20060102"),
		AdjustPrice: "1",
	}
	if err := c.doRequest(ctx, APIDailyChart, pathChart, req, &out); err != nil {
		return nil, err
	}
	return mapper.ToCandles(out.Bars), nil
}
