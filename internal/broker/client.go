// Package broker talks to the Korea Investment & Securities Open API. It
// only reads: tokens, balances and quotes.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
)

const (
	LiveBaseURL    = "https://openapi.koreainvestment.com:9443"
	VirtualBaseURL = "https://openapivts.koreainvestment.com:29443"

	tokenPath    = "/oauth2/tokenP"
	balancePath  = "/uapi/domestic-stock/v1/trading/inquire-balance"
	pricePath    = "/uapi/domestic-stock/v1/quotations/inquire-price"
	trBalance    = "TTTC8434R"
	trBalanceSim = "VTTC8434R"
	trPrice      = "FHKST01010100"
)

// APIError is a failure reported by the broker, either as a non-2xx status
// or as a non-zero rt_cd in an otherwise successful response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("broker error (status %d): %s", e.Status, e.Message)
}

// Credentials identify the app registered with the broker.
type Credentials struct {
	AppKey    string
	AppSecret string
	Virtual   bool
}

type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

type Client struct {
	httpClient *http.Client
	liveURL    string
	virtualURL string
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs points the client at other hosts, e.g. an httptest server.
func WithBaseURLs(live, virtual string) Option {
	return func(c *Client) {
		c.liveURL = strings.TrimRight(live, "/")
		c.virtualURL = strings.TrimRight(virtual, "/")
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		liveURL:    LiveBaseURL,
		virtualURL: VirtualBaseURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) baseURL(virtual bool) string {
	if virtual {
		return c.virtualURL
	}
	return c.liveURL
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	ExpiredAt        string `json:"access_token_token_expired"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// kst is the broker's local time zone for expiry timestamps.
var kst = time.FixedZone("KST", 9*60*60)

// IssueToken exchanges app credentials for a bearer token.
func (c *Client) IssueToken(ctx context.Context, cred Credentials) (Token, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     cred.AppKey,
		"appsecret":  cred.AppSecret,
	})
	if err != nil {
		return Token{}, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(cred.Virtual)+tokenPath, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	if resp.AccessToken == "" {
		return Token{}, &APIError{Status: http.StatusOK, Code: resp.ErrorCode, Message: firstNonEmpty(resp.ErrorDescription, "empty access token")}
	}

	now := c.now()
	expires := now.Add(24 * time.Hour)
	switch {
	case resp.ExpiresIn > 0:
		expires = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	case resp.ExpiredAt != "":
		if t, err := time.ParseInLocation(time.DateTime, resp.ExpiredAt, kst); err == nil {
			expires = t
		}
	}
	return Token{AccessToken: resp.AccessToken, ExpiresAt: expires}, nil
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (e envelope) err() error {
	if e.RtCd == "" || e.RtCd == "0" {
		return nil
	}
	return &APIError{Status: http.StatusOK, Code: e.MsgCd, Message: firstNonEmpty(e.Msg1, e.MsgCd, "unknown error")}
}

type balanceRow struct {
	Code          string `json:"pdno"`
	Name          string `json:"prdt_name"`
	Quantity      string `json:"hldg_qty"`
	AvgPrice      string `json:"pchs_avg_pric"`
	CurrentPrice  string `json:"prpr"`
	EvalAmount    string `json:"evlu_amt"`
	ProfitLoss    string `json:"evlu_pfls_amt"`
	ProfitLossPct string `json:"evlu_pfls_rt"`
}

type balanceResponse struct {
	envelope
	Output1 []balanceRow `json:"output1"`
}

// Holdings lists the positions in account. Rows with zero quantity are
// dropped.
func (c *Client) Holdings(ctx context.Context, cred Credentials, token string, account Account) ([]core.Holding, error) {
	q := url.Values{}
	q.Set("CANO", account.CANO)
	q.Set("ACNT_PRDT_CD", account.ProductCode)
	q.Set("AFHR_FLPR_YN", "N")
	q.Set("OFL_YN", "")
	q.Set("INQR_DVSN", "02")
	q.Set("UNPR_DVSN", "01")
	q.Set("FUND_STTL_ICLD_YN", "N")
	q.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	q.Set("PRCS_DVSN", "01")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	trID := trBalance
	if cred.Virtual {
		trID = trBalanceSim
	}
	req, err := c.newQuery(ctx, cred, token, trID, balancePath, q)
	if err != nil {
		return nil, err
	}

	var resp balanceResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("inquire balance: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, fmt.Errorf("inquire balance: %w", err)
	}

	holdings := make([]core.Holding, 0, len(resp.Output1))
	for _, row := range resp.Output1 {
		qty := parseDecimal(row.Quantity)
		if qty.IsZero() {
			continue
		}
		holdings = append(holdings, core.Holding{
			Code:          strings.TrimSpace(row.Code),
			Name:          strings.TrimSpace(row.Name),
			Quantity:      qty.IntPart(),
			AvgPrice:      parseDecimal(row.AvgPrice),
			CurrentPrice:  won(row.CurrentPrice),
			EvalAmount:    won(row.EvalAmount),
			ProfitLoss:    won(row.ProfitLoss),
			ProfitLossPct: parseDecimal(row.ProfitLossPct),
		})
	}
	return holdings, nil
}

type priceResponse struct {
	envelope
	Output struct {
		Price     string `json:"stck_prpr"`
		PrevClose string `json:"prdy_clpr"`
		Name      string `json:"hts_kor_isnm"`
		Volume    string `json:"acml_vol"`
		High      string `json:"stck_hgpr"`
		Low       string `json:"stck_lwpr"`
	} `json:"output"`
}

// Price fetches the current quote for a domestic stock code.
func (c *Client) Price(ctx context.Context, cred Credentials, token, code string) (core.Quote, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J")
	q.Set("FID_INPUT_ISCD", code)

	req, err := c.newQuery(ctx, cred, token, trPrice, pricePath, q)
	if err != nil {
		return core.Quote{}, err
	}

	var resp priceResponse
	if err := c.do(req, &resp); err != nil {
		return core.Quote{}, fmt.Errorf("inquire price: %w", err)
	}
	if err := resp.err(); err != nil {
		return core.Quote{}, fmt.Errorf("inquire price: %w", err)
	}

	price := parseDecimal(resp.Output.Price)
	prev := parseDecimal(resp.Output.PrevClose)
	change := price.Sub(prev)
	pct := decimal.Zero
	if !prev.IsZero() {
		pct = change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return core.Quote{
		Code:      code,
		Name:      strings.TrimSpace(resp.Output.Name),
		Price:     core.Money{Won: price.IntPart()},
		PrevClose: core.Money{Won: prev.IntPart()},
		Change:    core.Money{Won: change.IntPart()},
		ChangePct: pct,
		Volume:    parseDecimal(resp.Output.Volume).IntPart(),
		High:      won(resp.Output.High),
		Low:       won(resp.Output.Low),
	}, nil
}

func (c *Client) newQuery(ctx context.Context, cred Credentials, token, trID, path string, q url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(cred.Virtual)+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", cred.AppKey)
	req.Header.Set("appsecret", cred.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")
	return req, nil
}

// do sends req and decodes a JSON body into out. Non-2xx statuses become
// *APIError carrying whatever message the body holds.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Unavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var env struct {
			envelope
			ErrorCode        string `json:"error_code"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &env) == nil {
			apiErr.Code = firstNonEmpty(env.MsgCd, env.ErrorCode)
			apiErr.Message = firstNonEmpty(env.Msg1, env.ErrorDescription, apiErr.Message)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ErrUnavailable marks a broker call that failed before the broker
// answered: dial, DNS or timeout failures.
var ErrUnavailable = errors.New("broker unavailable")

// Unavailable wraps a transport failure with ErrUnavailable. Errors that
// already came from the broker are returned as they are.
func Unavailable(err error) error {
	if err == nil || IsUpstream(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// IsUpstream reports whether err came from the broker rather than from
// local validation.
func IsUpstream(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) || errors.Is(err, ErrUnavailable)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func won(s string) core.Money {
	return core.Money{Won: parseDecimal(s).Round(0).IntPart()}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
