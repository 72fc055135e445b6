package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gagyebu/internal/core"
)

func TestParseAccount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "12345678-01", want: "12345678-01"},
		{in: "1234567801", want: "12345678-01"},
		{in: "12345678", want: "12345678-01"},
		{in: "12345678-2", want: "12345678-02"},
		{in: " 12345678 - 03 ", want: "12345678-03"},
		{in: "1234567-01", wantErr: true},
		{in: "abcdefgh-01", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAccount) {
					t.Fatalf("ParseAccount(%q) err = %v, want ErrInvalidAccount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAccount(%q) unexpected error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Fatalf("ParseAccount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func newTestServer(t *testing.T, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+tokenPath, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["appsecret"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error_code":"EGW00103","error_description":"invalid appsecret"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":86400}`))
	})
	mux.HandleFunc("GET "+balancePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("tr_id") != trBalanceSim || r.Header.Get("authorization") != "Bearer tok-1" {
			w.Write([]byte(`{"rt_cd":"1","msg_cd":"EGW00121","msg1":"bad request headers"}`))
			return
		}
		if r.URL.Query().Get("CANO") != "12345678" || r.URL.Query().Get("ACNT_PRDT_CD") != "01" {
			w.Write([]byte(`{"rt_cd":"1","msg_cd":"OPSQ2000","msg1":"bad account"}`))
			return
		}
		w.Write([]byte(`{"rt_cd":"0","output1":[
			{"pdno":"005930","prdt_name":"삼성전자","hldg_qty":"10","pchs_avg_pric":"65000.5000","prpr":"71000","evlu_amt":"710000","evlu_pfls_amt":"59995","evlu_pfls_rt":"9.22"},
			{"pdno":"000660","prdt_name":"SK하이닉스","hldg_qty":"0","pchs_avg_pric":"0","prpr":"180000","evlu_amt":"0","evlu_pfls_amt":"0","evlu_pfls_rt":"0"}
		]}`))
	})
	mux.HandleFunc("GET "+pricePath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("FID_INPUT_ISCD") == "999999" {
			w.Write([]byte(`{"rt_cd":"0","output":{"stck_prpr":"100","prdy_clpr":"0"}}`))
			return
		}
		w.Write([]byte(`{"rt_cd":"0","output":{"stck_prpr":"71000","prdy_clpr":"70000","hts_kor_isnm":"삼성전자","acml_vol":"1234567","stck_hgpr":"71500","stck_lwpr":"69800"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientHoldingsAndPrice(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	c := NewClient(time.Second, WithBaseURLs(srv.URL, srv.URL))
	cred := Credentials{AppKey: "key", AppSecret: "secret", Virtual: true}
	ctx := context.Background()

	tok, err := c.IssueToken(ctx, cred)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if tok.AccessToken != "tok-1" || time.Until(tok.ExpiresAt) < 23*time.Hour {
		t.Fatalf("unexpected token: %+v", tok)
	}

	acct, _ := ParseAccount("12345678-01")
	holdings, err := c.Holdings(ctx, cred, tok.AccessToken, acct)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("expected zero-quantity row dropped, got %d holdings", len(holdings))
	}
	h := holdings[0]
	if h.Code != "005930" || h.Quantity != 10 || h.EvalAmount.Won != 710000 || h.AvgPrice.String() != "65000.5" {
		t.Fatalf("unexpected holding: %+v", h)
	}
	if core.HoldingsTotal(holdings).Won != 710000 {
		t.Fatalf("total = %v", core.HoldingsTotal(holdings))
	}

	q, err := c.Price(ctx, cred, tok.AccessToken, "005930")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if q.Change.Won != 1000 || q.ChangePct.String() != "1.43" || q.Volume != 1234567 {
		t.Fatalf("unexpected quote: %+v", q)
	}

	q, err = c.Price(ctx, cred, tok.AccessToken, "999999")
	if err != nil {
		t.Fatalf("price without previous close: %v", err)
	}
	if !q.ChangePct.IsZero() {
		t.Fatalf("change pct = %s, want 0 when previous close is 0", q.ChangePct)
	}
}

func TestClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	c := NewClient(time.Second, WithBaseURLs(srv.URL, srv.URL))
	ctx := context.Background()

	_, err := c.IssueToken(ctx, Credentials{AppKey: "key", AppSecret: "wrong"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Code != "EGW00103" {
		t.Fatalf("token err = %v, want APIError 403 EGW00103", err)
	}

	acct, _ := ParseAccount("12345678-01")
	_, err = c.Holdings(ctx, Credentials{AppKey: "key", AppSecret: "secret", Virtual: true}, "stale", acct)
	if !errors.As(err, &apiErr) || apiErr.Code != "EGW00121" || !IsUpstream(err) {
		t.Fatalf("holdings err = %v, want APIError EGW00121", err)
	}
}

func TestClientTransportFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	c := NewClient(50*time.Millisecond, WithBaseURLs(srv.URL, srv.URL))

	_, err := c.IssueToken(context.Background(), Credentials{AppKey: "key", AppSecret: "secret"})
	if !errors.Is(err, ErrUnavailable) || !IsUpstream(err) {
		t.Fatalf("timeout err = %v, want ErrUnavailable", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("timeout reported as broker answer: %v", err)
	}

	if got := Unavailable(&APIError{Status: http.StatusBadGateway}); errors.Is(got, ErrUnavailable) {
		t.Fatalf("broker answer rewrapped: %v", got)
	}
}

type tokenRecorder struct {
	saved map[string]string
}

func (r *tokenRecorder) SaveToken(_ context.Context, userID, token string, _ time.Time) error {
	r.saved[userID] = token
	return nil
}

func TestSessionReusesTokenUntilMargin(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	now := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	client := NewClient(time.Second, WithBaseURLs(srv.URL, srv.URL), WithClock(func() time.Time { return now }))
	store := &tokenRecorder{saved: map[string]string{}}
	s := NewSession(client, store)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	conn := core.BrokerConnection{UserID: "u1", AppKey: "key", AppSecret: "secret"}

	tests := []struct {
		name      string
		conn      core.BrokerConnection
		wantCalls int32
	}{
		{name: "issues when nothing cached", conn: conn, wantCalls: 1},
		{name: "reuses cached token", conn: conn, wantCalls: 1},
		{
			name: "reuses persisted token for another user",
			conn: core.BrokerConnection{
				UserID: "u2", AppKey: "key", AppSecret: "secret",
				AccessToken: "persisted", TokenExpiresAt: now.Add(10 * time.Minute),
			},
			wantCalls: 1,
		},
		{
			name: "replaces persisted token inside the margin",
			conn: core.BrokerConnection{
				UserID: "u3", AppKey: "key", AppSecret: "secret",
				AccessToken: "stale", TokenExpiresAt: now.Add(4 * time.Minute),
			},
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Token(ctx, tt.conn); err != nil {
				t.Fatalf("token: %v", err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Fatalf("token calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
	if store.saved["u1"] != "tok-1" || store.saved["u3"] != "tok-1" {
		t.Fatalf("persisted tokens = %v", store.saved)
	}
	if _, ok := store.saved["u2"]; ok {
		t.Fatal("reused token should not be persisted again")
	}
}
