package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BrokerConnection holds one user's brokerage credentials and the cached
// access token. Secrets never leave the server.
type BrokerConnection struct {
	UserID         string    `json:"userId"`
	AppKey         string    `json:"-"`
	AppSecret      string    `json:"-"`
	AccountNumber  string    `json:"accountNumber"`
	Virtual        bool      `json:"isVirtual"`
	AccessToken    string    `json:"-"`
	TokenExpiresAt time.Time `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TokenValid reports whether the cached token outlives now by at least
// margin.
func (c BrokerConnection) TokenValid(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && c.TokenExpiresAt.After(now.Add(margin))
}

// Holding is one position in a brokerage account.
type Holding struct {
	Code          string          `json:"stockCode"`
	Name          string          `json:"stockName"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	CurrentPrice  Money           `json:"currentPrice"`
	EvalAmount    Money           `json:"evalAmount"`
	ProfitLoss    Money           `json:"profitLoss"`
	ProfitLossPct decimal.Decimal `json:"profitLossRate"`
}

// Quote is a point-in-time price for one stock code.
type Quote struct {
	Code      string          `json:"stockCode"`
	Name      string          `json:"stockName"`
	Price     Money           `json:"currentPrice"`
	PrevClose Money           `json:"prevClose"`
	Change    Money           `json:"change"`
	ChangePct decimal.Decimal `json:"changeRate"`
	Volume    int64           `json:"volume"`
	High      Money           `json:"high"`
	Low       Money           `json:"low"`
}

// HoldingsTotal sums the evaluation amounts of every position.
func HoldingsTotal(hs []Holding) Money {
	var total Money
	for _, h := range hs {
		total = total.Add(h.EvalAmount)
	}
	return total
}
