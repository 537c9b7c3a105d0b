package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = 0
	c, err := New(server.URL+"/api/v1", httpclient.New("mirror-test", 5*time.Second, httpclient.WithRetry(retry)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("mirror.local/api/v1", httpclient.New("x", time.Second)); err == nil {
		t.Error("New() expected error for relative url")
	}
	c, err := New("", httpclient.New("x", time.Second))
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if c.base.String() != DefaultBaseURL {
		t.Errorf("base = %v, want %v", c.base, DefaultBaseURL)
	}
}

func TestGetAccount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/accounts/0.0.1234":
			w.Write([]byte(`{"account":"0.0.1234","balance":{"balance":250000000,"timestamp":"1700000000.000000001","tokens":[{"token_id":"0.0.5","balance":7}]},"evm_address":"0xabc","deleted":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"_status":{"messages":[{"message":"Not found"}]}}`))
		}
	}))

	acct, err := c.GetAccount(context.Background(), "0.0.1234")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if acct.Balance.Balance != 250000000 || len(acct.Balance.Tokens) != 1 {
		t.Errorf("GetAccount() balance = %+v", acct.Balance)
	}
	if acct.EVMAddress == nil || *acct.EVMAddress != "0xabc" {
		t.Errorf("GetAccount() evm_address = %v", acct.EVMAddress)
	}

	if _, err := c.GetAccount(context.Background(), "0.0.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount() missing error = %v, want ErrNotFound", err)
	}
}

func TestListTransactionsQuery(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"transactions":[{"transaction_id":"0.0.2-1700000000-1","result":"SUCCESS","transfers":[{"account":"0.0.2","amount":-5}]}],"links":{"next":null}}`))
	}))

	txs, err := c.ListTransactions(context.Background(), TransactionFilter{
		AccountID: "0.0.2",
		Result:    "success",
		Page:      Page{Timestamp: Comparison(Gte, "1700000000")},
	})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Transfers[0].Amount != -5 {
		t.Errorf("ListTransactions() = %+v", txs)
	}
	want := map[string]string{
		"limit":      "25",
		"order":      "desc",
		"account.id": "0.0.2",
		"result":     "success",
		"timestamp":  "gte:1700000000",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("query %s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["transactiontype"]; ok {
		t.Error("empty transactiontype should not be sent")
	}
}

func TestEndpointDefaults(t *testing.T) {
	tests := []struct {
		name      string
		call      func(c *Client) error
		path      string
		wantLimit string
		wantOrder string
	}{
		{
			name:      "account tokens",
			call:      func(c *Client) error { _, err := c.ListAccountTokens(context.Background(), "0.0.1", "", Page{}); return err },
			path:      "/api/v1/accounts/0.0.1/tokens",
			wantLimit: "50", wantOrder: "asc",
		},
		{
			name:      "network nodes",
			call:      func(c *Client) error { _, err := c.ListNetworkNodes(context.Background(), "", "", Page{}); return err },
			path:      "/api/v1/network/nodes",
			wantLimit: "100", wantOrder: "asc",
		},
		{
			name:      "contract results",
			call:      func(c *Client) error { _, err := c.ListContractResults(context.Background(), "0.0.7", ResultFilter{}); return err },
			path:      "/api/v1/contracts/0.0.7/results",
			wantLimit: "25", wantOrder: "desc",
		},
		{
			name:      "nft transactions",
			call:      func(c *Client) error { _, err := c.ListNFTTransactions(context.Background(), "0.0.800", 3, Page{Limit: 5}); return err },
			path:      "/api/v1/tokens/0.0.800/nfts/3/transactions",
			wantLimit: "5", wantOrder: "desc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("path = %v, want %v", r.URL.Path, tt.path)
				}
				if r.URL.Query().Get("limit") != tt.wantLimit || r.URL.Query().Get("order") != tt.wantOrder {
					t.Errorf("query = %v, want limit=%s order=%s", r.URL.RawQuery, tt.wantLimit, tt.wantOrder)
				}
				w.Write([]byte(`{}`))
			}))
			if err := tt.call(c); err != nil {
				t.Errorf("call error = %v", err)
			}
		})
	}
}

func TestNetworkStakeAndSupply(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/network/stake":
			w.Write([]byte(`{"stake_total":1000,"staking_period":{"from":"1.0","to":"2.0"},"node_reward_fee_fraction":0.1}`))
		case "/api/v1/network/supply":
			if r.URL.Query().Get("timestamp") != "lt:5" {
				t.Errorf("supply timestamp = %q", r.URL.Query().Get("timestamp"))
			}
			w.Write([]byte(`{"released_supply":"100","total_supply":"5000000000000000000","timestamp":"4.0"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	stake, err := c.GetNetworkStake(context.Background())
	if err != nil || stake.StakeTotal != 1000 || stake.StakingPeriod.To != "2.0" {
		t.Errorf("GetNetworkStake() = %+v, %v", stake, err)
	}
	supply, err := c.GetNetworkSupply(context.Background(), Comparison(Lt, 5))
	if err != nil || supply.TotalSupply != "5000000000000000000" {
		t.Errorf("GetNetworkSupply() = %+v, %v", supply, err)
	}
	if _, err := c.GetNFT(context.Background(), "0.0.1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNFT() error = %v, want ErrNotFound", err)
	}
}

func TestListContractLogsFollowsNext(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if q.Get("topic0") != "0xsig" || q.Get("topic2") != "0x01" {
			t.Errorf("call %d query = %v", calls, r.URL.RawQuery)
		}
		resp := map[string]any{}
		if q.Get("timestamp") == "" {
			resp["logs"] = []map[string]any{{"topics": []string{"0xsig", "0x2a", "0x01"}, "index": 0}}
			resp["links"] = map[string]any{"next": "/api/v1/contracts/0.0.7/results/logs?topic0=0xsig&topic2=0x01&limit=1&order=asc&timestamp=gt:1.0"}
		} else {
			resp["logs"] = []map[string]any{{"topics": []string{"0xsig", "0x2b", "0x01"}, "index": 1}}
			resp["links"] = map[string]any{"next": nil}
		}
		json.NewEncoder(w).Encode(resp)
	}))

	logs, err := c.ListContractLogs(context.Background(), "0.0.7", LogFilter{Topic0: "0xsig", Topic2: "0x01", Page: Page{Limit: 1}})
	if err != nil {
		t.Fatalf("ListContractLogs() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(logs) != 2 || logs[1].Topics[1] != "0x2b" {
		t.Errorf("ListContractLogs() = %+v", logs)
	}
}

func TestListContractLogsStopsAtPageCap(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"logs":[{"topics":["0xsig","0x1"]}],"links":{"next":"/api/v1/contracts/0.0.7/results/logs?timestamp=gt:1"}}`))
	}))
	logs, err := c.ListContractLogs(context.Background(), "0.0.7", LogFilter{})
	if err != nil {
		t.Fatalf("ListContractLogs() error = %v", err)
	}
	if calls != maxLogPages || len(logs) != maxLogPages {
		t.Errorf("calls = %d, logs = %d, want %d", calls, len(logs), maxLogPages)
	}
}

func TestServerErrorIsHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"_status":{"messages":[{"message":"Invalid parameter: limit"}]}}`))
	}))
	_, err := c.ListBlocks(context.Background(), Page{Limit: -1})
	if httpclient.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("ListBlocks() error = %v, want HTTP 400", err)
	}
	if !strings.Contains(err.Error(), "Invalid parameter") {
		t.Errorf("error %q does not carry the response body", err)
	}
}

func TestHelpers(t *testing.T) {
	if got := TinybarsToHbar(150000000); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("TinybarsToHbar() = %v, want 1.5", got)
	}
	if got := HbarToTinybars(decimal.RequireFromString("0.000000019")); got != 1 {
		t.Errorf("HbarToTinybars() = %v, want 1 (floored)", got)
	}
	if got := Comparison(Gte, 10); got != "gte:10" {
		t.Errorf("Comparison() = %q, want gte:10", got)
	}

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "1700000000.123456789", want: time.Unix(1700000000, 123456789).UTC()},
		{in: "1700000000.5", want: time.Unix(1700000000, 500000000).UTC()},
		{in: "1700000000", want: time.Unix(1700000000, 0).UTC()},
		{in: "abc.1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
