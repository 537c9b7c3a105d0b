package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/console"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/events"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/lifecycle"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/model"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/store"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/testutil"
)

func testOptions() Options {
	return Options{
		CaptainAgentID:  big.NewInt(800400),
		Counterparts:    []*big.Int{big.NewInt(800400), big.NewInt(800401), big.NewInt(800402)},
		RefreshInterval: 20 * time.Millisecond,
	}
}

func newTestService(t *testing.T, chain *testutil.FakeChain, cached ...string) (*Service, store.StreamStore) {
	t.Helper()
	st := store.NewMemoryStore()
	if len(cached) > 0 {
		key := discovery.EntryName + ":" + strings.ToLower(chain.Account().Hex())
		require.NoError(t, st.Save(context.Background(), key, cached))
	}
	svc := New(context.Background(), chain, st, nil, nil, nil, testOptions())
	t.Cleanup(svc.Shutdown)
	return svc, st
}

func waitDeposit(t *testing.T, svc *Service, id, stage string) model.Flow {
	t.Helper()
	var f model.Flow
	require.Eventually(t, func() bool {
		var err error
		f, err = svc.Deposit(id)
		return err == nil && f.Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "deposit never reached %s", stage)
	return f
}

func TestDepositOpensAndCachesStream(t *testing.T) {
	chain := testutil.NewFakeChain()
	release := chain.Hold("approve")
	svc, _ := newTestService(t, chain)

	f, err := svc.StartDeposit(model.DepositRequest{ReceiverAgentID: 800401, Amount: "10", RatePerSecond: "0.0001"})
	require.NoError(t, err)
	assert.Equal(t, "approve", f.Stage)
	assert.Equal(t, "1.2 days", f.Duration)
	close(release)

	done := waitDeposit(t, svc, f.ID, "success")
	assert.Equal(t, "42", done.StreamID)
	assert.Equal(t, "#42", done.StreamLabel)
	assert.Equal(t, []string{"form", "approve", "deposit", "success"}, done.History)
	assert.Equal(t, []string{"approve", "openStream"}, chain.Calls())
	assert.Contains(t, done.ExplorerURL, done.StreamTx)

	list, err := svc.Streams(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list.Streams, 1)
	assert.Equal(t, "42", list.Streams[0].ID)
	assert.Equal(t, "Navigator Prime", list.Streams[0].ReceiverName)
	assert.Equal(t, "100", list.Streams[0].RatePerSecond)
	assert.False(t, list.Streams[0].CanWithdraw, "nothing owed yet")

	notes := svc.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, "Stream opened", notes[0].Title)

	require.Eventually(t, func() bool {
		lines := svc.Console(console.Query{Type: console.TypeX402})
		return len(lines) == 1 && strings.HasPrefix(lines[0].Content, "Stream #42 opened to Navigator Prime: 10 at 0.0001/s.")
	}, time.Second, 5*time.Millisecond)
}

func TestDepositRejectedBeforeSubmission(t *testing.T) {
	tests := []struct {
		name string
		req  model.DepositRequest
		want error
	}{
		{name: "receiver is sender", req: model.DepositRequest{ReceiverAgentID: 800400, Amount: "1", RatePerSecond: "0.1"}, want: lifecycle.ErrReceiverIsSender},
		{name: "unknown receiver", req: model.DepositRequest{ReceiverAgentID: 1, Amount: "1", RatePerSecond: "0.1"}, want: lifecycle.ErrUnknownReceiver},
		{name: "bad amount", req: model.DepositRequest{ReceiverAgentID: 800401, Amount: "abc", RatePerSecond: "0.1"}, want: lifecycle.ErrInvalidAmount},
		{name: "rate truncates to zero", req: model.DepositRequest{ReceiverAgentID: 800401, Amount: "10", RatePerSecond: "0.0000001"}, want: lifecycle.ErrInvalidRate},
		{name: "amount truncates to zero", req: model.DepositRequest{ReceiverAgentID: 800401, Amount: "0.0000001", RatePerSecond: "0.1"}, want: lifecycle.ErrInvalidAmount},
		{name: "bad asset", req: model.DepositRequest{ReceiverAgentID: 800401, Amount: "1", RatePerSecond: "0.1", Asset: "nope"}, want: ErrInvalidAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := testutil.NewFakeChain()
			svc, _ := newTestService(t, chain)
			_, err := svc.StartDeposit(tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, lifecycle.IsKind(err, lifecycle.KindValidation))
			assert.Empty(t, chain.Calls())
		})
	}
}

func TestDepositWithoutWallet(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.Wallet = false
	svc, _ := newTestService(t, chain)

	_, err := svc.StartDeposit(model.DepositRequest{ReceiverAgentID: 800401, Amount: "1", RatePerSecond: "0.1"})
	require.ErrorIs(t, err, lifecycle.ErrWalletNotConnected)
	assert.False(t, svc.Wallet().Connected)
	assert.Empty(t, svc.Wallet().Address)
}

func TestStreamsToleratesFailedReads(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(1, testutil.NewStreamFixture().WithRate(100).Build(), 500)
	chain.SetStream(2, testutil.NewStreamFixture().WithRate(250).Build(), 0)
	chain.FailReads(2, contract.ErrNetwork)
	chain.SetStream(3, testutil.NewStreamFixture().WithRate(1000).Closed().Build(), 0)
	chain.SetStream(4, testutil.NewStreamFixture().WithRate(40).Build(), 0)
	svc, _ := newTestService(t, chain, "1", "2", "3", "4", "bogus")

	list, err := svc.Streams(context.Background(), false)
	require.NoError(t, err)
	ids := make([]string, len(list.Streams))
	for i, s := range list.Streams {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids)

	byID := map[string]model.Stream{}
	for _, s := range list.Streams {
		byID[s.ID] = s
	}
	assert.True(t, byID["1"].CanWithdraw)
	assert.Equal(t, "0.0005", byID["1"].OwedDisplay)
	assert.Equal(t, "unknown", byID["2"].OwedDisplay)
	assert.False(t, byID["2"].CanWithdraw)
	assert.NotEmpty(t, byID["2"].Error)
	assert.False(t, byID["4"].CanWithdraw, "zero owed disables withdraw")
	assert.True(t, byID["3"].Closed)

	rate, err := svc.Rate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "140", rate.RatePerSecond)
	assert.Equal(t, "0.00014", rate.Display)
	assert.Equal(t, 4, rate.Streams)
	assert.Equal(t, 2, rate.Counted)
	assert.Equal(t, 1, rate.Failed)
}

func TestStreamDetail(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(7, testutil.NewStreamFixture().WithAgents(800400, 800405).Build(), 120)
	svc, _ := newTestService(t, chain)

	s, err := svc.Stream(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Oracle Celestia", s.ReceiverName)
	assert.Equal(t, "999750", s.RemainingAllowance)
	assert.Equal(t, "120", s.Owed)

	_, err = svc.Stream(context.Background(), "8")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	_, err = svc.Stream(context.Background(), "007")
	assert.ErrorIs(t, err, ErrInvalidStream)
}

func TestWithdrawLifecycle(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(9, testutil.NewStreamFixture().Build(), 300)
	chain.SetStream(10, testutil.NewStreamFixture().Build(), 0)
	svc, _ := newTestService(t, chain, "9", "10")

	_, err := svc.StartWithdraw(context.Background(), "10")
	require.ErrorIs(t, err, lifecycle.ErrNothingOwed)

	gate := chain.Hold("withdraw")
	f, err := svc.StartWithdraw(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, "withdrawing", f.Stage)

	require.Eventually(t, func() bool {
		list, err := svc.Streams(context.Background(), false)
		return err == nil && list.Streams[1].ID == "9" && list.Streams[1].Pending && !list.Streams[1].CanWithdraw
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, svc.DismissWithdraw("9"), lifecycle.ErrPending)

	close(gate)
	require.Eventually(t, func() bool {
		f, err := svc.Withdrawal("9")
		return err == nil && f.Stage == "success"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.DismissWithdraw("9"))
	_, err = svc.Withdrawal("9")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestCloseClosedStreamNeverSubmits(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(5, testutil.NewStreamFixture().Closed().Build(), 0)
	svc, _ := newTestService(t, chain, "5")

	_, err := svc.CloseStream(context.Background(), "5")
	require.ErrorIs(t, err, contract.ErrStreamClosed)
	assert.NotContains(t, chain.Calls(), "closeStream")
}

func TestClosedStreamIsNotWithdrawable(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(7, testutil.NewStreamFixture().Closed().Build(), 9)
	svc, _ := newTestService(t, chain, "7")

	list, err := svc.Streams(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list.Streams, 1)
	assert.True(t, list.Streams[0].Closed)
	assert.False(t, list.Streams[0].CanWithdraw)

	_, err = svc.StartWithdraw(context.Background(), "7")
	require.ErrorIs(t, err, contract.ErrStreamClosed)
	assert.Empty(t, chain.Calls())
}

func TestPushPaymentsPublishesEvent(t *testing.T) {
	var mu sync.Mutex
	var got []events.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e events.Envelope
		_ = json.NewDecoder(r.Body).Decode(&e)
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))
	defer srv.Close()

	chain := testutil.NewFakeChain()
	chain.SetStream(3, testutil.NewStreamFixture().Build(), 10)
	pub := events.NewPublisher("test")
	pub.RegisterEndpoint(events.AllEvents, srv.URL)
	svc := New(context.Background(), chain, store.NewMemoryStore(), nil, nil, pub, testOptions())
	defer svc.Shutdown()

	res, err := svc.PushPayments(context.Background(), "3")
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, "https://hashscan.io/testnet/transaction/"+res.TxHash, res.ExplorerURL)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, events.EventPaymentsPushed, got[0].EventType)
	assert.Equal(t, "3", got[0].Data["stream_id"])
	mu.Unlock()
}

func TestFailedWithdrawPublishesFailure(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(6, testutil.NewStreamFixture().Build(), 10)
	chain.Revert("withdraw")
	pub := events.NewPublisher("test")
	var mu sync.Mutex
	var kinds []string
	pub.AddSink(func(ctx context.Context, e events.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if k, ok := e.Data["error_kind"].(string); ok {
			kinds = append(kinds, k)
		}
	})
	svc := New(context.Background(), chain, store.NewMemoryStore(), nil, nil, pub, testOptions())
	defer svc.Shutdown()

	_, err := svc.StartWithdraw(context.Background(), "6")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		f, err := svc.Withdrawal("6")
		return err == nil && f.Stage == "list" && f.Error != nil
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1 && kinds[0] == string(lifecycle.KindFailed)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Withdrawal failed", svc.Notifications()[0].Title)
}

func TestWatchRefreshesUntilStopped(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetStream(1, testutil.NewStreamFixture().WithRate(100).Build(), 0)
	svc, _ := newTestService(t, chain, "1")

	assert.True(t, svc.StartWatch())
	assert.False(t, svc.StartWatch(), "one watcher per view")
	require.Eventually(t, func() bool {
		r, _ := svc.Rate(context.Background(), false)
		return r.RatePerSecond == "100"
	}, time.Second, 5*time.Millisecond)

	chain.SetStream(1, testutil.NewStreamFixture().WithRate(300).Build(), 0)
	require.Eventually(t, func() bool {
		r, _ := svc.Rate(context.Background(), false)
		return r.RatePerSecond == "300"
	}, time.Second, 5*time.Millisecond)

	assert.True(t, svc.StopWatch())
	assert.False(t, svc.Watching())
	assert.False(t, svc.StopWatch())
}

func TestDurationAndMirror(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewFakeChain())
	d := svc.Duration("1000", "0.01")
	assert.Equal(t, int64(100000), d.Seconds)
	assert.Equal(t, "1.2 days", d.Display)

	_, err := svc.Mirror()
	assert.True(t, errors.Is(err, ErrNoMirror))
}
