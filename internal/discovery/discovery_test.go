package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/store"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/testutil"
)

// countingStore records how often Save is called.
type countingStore struct {
	*store.MemoryStore
	saves atomic.Int32
}

func (c *countingStore) Save(ctx context.Context, key string, ids []string) error {
	c.saves.Add(1)
	return c.MemoryStore.Save(ctx, key, ids)
}

func TestValidID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1", true},
		{"42", true},
		{"999999", true},
		{"1000000", false},
		{"0", false},
		{"-3", false},
		{"1e+21", false},
		{"1.5", false},
		{"007", false},
		{"", false},
		{"abc", false},
		{" 5", false},
		{"99999999999999999999999", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidID(tt.in), "ValidID(%q)", tt.in)
	}
}

func TestCacheLoadPurgesAndWritesBack(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{MemoryStore: store.NewMemoryStore()}
	require.NoError(t, s.MemoryStore.Save(ctx, "userStreams:0xabc", []string{"3", "1e+21", "5", "0", "5", "abc", "1000000", "8"}))

	c := NewCache(s, "0xabc")
	ids, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "5", "8"}, ids)
	assert.EqualValues(t, 1, s.saves.Load(), "cleaned list should be written back once")

	stored, _ := s.MemoryStore.Load(ctx, "userStreams:0xabc")
	assert.Equal(t, []string{"3", "5", "8"}, stored)

	_, err = c.Load(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.saves.Load(), "a clean list is not rewritten")
}

func TestCacheLoadProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	valid := gen.IntRange(1, MaxStreamID-1).Map(func(n int) string { return fmt.Sprint(n) })
	invalid := gen.OneGenOf(
		gen.IntRange(MaxStreamID, 10*MaxStreamID).Map(func(n int) string { return fmt.Sprint(n) }),
		gen.IntRange(-1000, 0).Map(func(n int) string { return fmt.Sprint(n) }),
		gen.AlphaString(),
		gen.Const("1e+21"),
		gen.Const("2.5"),
	)
	entry := gen.OneGenOf(valid, invalid)

	properties.Property("load keeps exactly the valid first occurrences", prop.ForAll(
		func(raw []string) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			s.Save(ctx, EntryName, raw)
			got, err := NewCache(s, "").Load(ctx)
			if err != nil {
				return false
			}
			var want []string
			seen := map[string]bool{}
			for _, id := range raw {
				if ValidID(id) && !seen[id] {
					seen[id] = true
					want = append(want, id)
				}
			}
			persisted, _ := s.Load(ctx, EntryName)
			return fmt.Sprint(got) == fmt.Sprint(want) && fmt.Sprint(persisted) == fmt.Sprint(want)
		},
		gen.SliceOf(entry),
	))

	properties.TestingRun(t)
}

func TestCacheAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{MemoryStore: store.NewMemoryStore()}
	c := NewCache(s, "")

	added, err := c.Append(ctx, "42")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.Append(ctx, "42")
	require.NoError(t, err)
	assert.False(t, added)
	assert.EqualValues(t, 1, s.saves.Load())

	_, err = c.Append(ctx, "1e+21")
	assert.Error(t, err)

	_, err = c.Append(ctx, "43")
	require.NoError(t, err)
	newest, err := c.Newest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"43", "42"}, newest)
}

type fakeSource struct {
	ids   []*big.Int
	err   error
	calls atomic.Int32
}

func (f *fakeSource) StreamsOpenedBy(ctx context.Context, sender *big.Int) ([]*big.Int, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

func TestDiscovererUsesCacheFirst(t *testing.T) {
	ctx := context.Background()
	c := NewCache(store.NewMemoryStore(), "")
	require.NoError(t, c.Replace(ctx, []string{"4", "9"}))
	src := &fakeSource{ids: []*big.Int{big.NewInt(11)}}

	ids, err := NewDiscoverer(c, src, big.NewInt(1)).Streams(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "4"}, ids)
	assert.Zero(t, src.calls.Load())
}

func TestDiscovererFallsBackToLogs(t *testing.T) {
	ctx := context.Background()
	c := NewCache(store.NewMemoryStore(), "")
	src := &fakeSource{ids: []*big.Int{big.NewInt(12), big.NewInt(3), big.NewInt(7), big.NewInt(2_000_000)}}

	ids, err := NewDiscoverer(c, src, big.NewInt(1)).Streams(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "7", "3"}, ids)

	cached, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "7", "12"}, cached)
}

func TestDiscovererForcedRefreshMerges(t *testing.T) {
	ctx := context.Background()
	c := NewCache(store.NewMemoryStore(), "")
	require.NoError(t, c.Replace(ctx, []string{"20"}))
	src := &fakeSource{ids: []*big.Int{big.NewInt(5), big.NewInt(20)}}

	ids, err := NewDiscoverer(c, src, big.NewInt(1)).Streams(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "20"}, ids)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestDiscovererLogFailure(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: errors.New("mirror down")}

	_, err := NewDiscoverer(NewCache(store.NewMemoryStore(), ""), src, big.NewInt(1)).Streams(ctx, false)
	assert.Error(t, err)

	c := NewCache(store.NewMemoryStore(), "")
	require.NoError(t, c.Replace(ctx, []string{"6"}))
	ids, err := NewDiscoverer(c, src, big.NewInt(1)).Streams(ctx, true)
	require.NoError(t, err, "a cached list survives a failed refresh")
	assert.Equal(t, []string{"6"}, ids)
}

func TestDiscovererWithoutSender(t *testing.T) {
	_, err := NewDiscoverer(NewCache(store.NewMemoryStore(), ""), &fakeSource{}, big.NewInt(0)).Streams(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoSender)
}

type fakeLogLister struct {
	got  mirror.LogFilter
	logs []mirror.ContractLog
}

func (f *fakeLogLister) ListContractLogs(ctx context.Context, id string, filter mirror.LogFilter) ([]mirror.ContractLog, error) {
	f.got = filter
	return f.logs, nil
}

func TestMirrorLogsDecodesTopics(t *testing.T) {
	lister := &fakeLogLister{logs: []mirror.ContractLog{
		{Topics: []string{contract.StreamOpenedTopic.Hex(), "0x000000000000000000000000000000000000000000000000000000000000002a", "0x01"}},
		{Topics: []string{contract.StreamOpenedTopic.Hex()}},
		{Topics: []string{contract.StreamOpenedTopic.Hex(), "0xnothex"}},
		{Topics: []string{contract.StreamOpenedTopic.Hex(), "0x2b"}},
	}}
	ids, err := MirrorLogs{Mirror: lister, Contract: "0.0.7"}.StreamsOpenedBy(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "42", ids[0].String())
	assert.Equal(t, "43", ids[1].String())
	assert.Equal(t, contract.StreamOpenedTopic.Hex(), lister.got.Topic0)
	assert.Equal(t, contract.IDTopic(big.NewInt(1)).Hex(), lister.got.Topic2)
}

type fakeReader struct {
	streams map[int64]contract.Stream
	fail    map[int64]bool
}

func (f *fakeReader) GetStreamData(ctx context.Context, id *big.Int) (contract.Stream, error) {
	if f.fail[id.Int64()] {
		return contract.Stream{}, errors.New("call reverted")
	}
	s, ok := f.streams[id.Int64()]
	if !ok {
		return contract.Stream{}, contract.ErrNoData
	}
	return s, nil
}

func TestAggregatorIsolatesFailures(t *testing.T) {
	reader := &fakeReader{
		streams: map[int64]contract.Stream{
			1: testutil.NewStreamFixture().WithRate(100).Build(),
			2: testutil.NewStreamFixture().WithRate(250).Build(),
			3: testutil.NewStreamFixture().WithRate(40).Build(),
			4: testutil.NewStreamFixture().WithRate(1000).Closed().Build(),
		},
		fail: map[int64]bool{2: true},
	}
	a := NewAggregator(reader, 2)

	total := a.Refresh(context.Background(), []string{"1", "2", "3", "4", "5"})
	assert.Equal(t, "140", total.String())
	assert.Equal(t, "140", a.Total().String())

	e, ok := a.Entry("2")
	require.True(t, ok)
	assert.Error(t, e.Err)
	assert.False(t, e.Counts())

	entries := a.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "1", entries[0].ID)
}

func TestAggregatorRebuildsEachRefresh(t *testing.T) {
	reader := &fakeReader{streams: map[int64]contract.Stream{
		1: testutil.NewStreamFixture().WithRate(100).Build(),
		2: testutil.NewStreamFixture().WithRate(5).Build(),
	}}
	a := NewAggregator(reader, 0)
	assert.Equal(t, "105", a.Refresh(context.Background(), []string{"1", "2"}).String())

	reader.streams[1] = testutil.NewStreamFixture().WithRate(100).Closed().Build()
	assert.Equal(t, "5", a.Refresh(context.Background(), []string{"1", "2"}).String())

	assert.Equal(t, "5", a.Refresh(context.Background(), []string{"2"}).String())
	_, ok := a.Entry("1")
	assert.False(t, ok, "ids dropped from the list leave the rate map")
}

func TestEveryRunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	tk := Every(context.Background(), 5*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	tk.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
	tk.Stop()

	select {
	case <-tk.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
}

func TestEveryStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := Every(ctx, time.Hour, func(context.Context) {})
	cancel()
	select {
	case <-tk.Done():
	case <-time.After(time.Second):
		t.Fatal("ticker did not exit on parent cancel")
	}
}
