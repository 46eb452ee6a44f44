package refresher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/internal/notification"
	"github.com/oceanprotocol/pdr-utils/internal/storage"
	"github.com/oceanprotocol/pdr-utils/internal/subgraph"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

type fakeRunner struct {
	mu      sync.Mutex
	results []*subgraph.Result
	calls   int
}

func (f *fakeRunner) Discover(ctx context.Context) *subgraph.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i]
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func result(err error, addrs ...string) *subgraph.Result {
	contracts := make(map[string]*models.NormalizedContract)
	for _, addr := range addrs {
		contracts[addr] = &models.NormalizedContract{Address: addr, Name: "c" + addr, Symbol: "S", BlocksPerEpoch: 60}
	}
	return &subgraph.Result{Contracts: contracts, Pages: 1, Err: err}
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store := storage.NewSQLiteStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "contracts.db"),
		MaxConnections:   1,
	})
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func TestRefreshPersistsAndCaches(t *testing.T) {
	store := newStore(t)
	runner := &fakeRunner{results: []*subgraph.Result{result(nil, "0xbb", "0xaa")}}
	r := New(runner, store, &config.RefresherConfig{Schedule: "@every 1h", CacheTTL: time.Minute})

	snapshot, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshot.Complete)
	require.Len(t, snapshot.Contracts, 2)
	assert.Equal(t, "0xaa", snapshot.Contracts[0].Address)

	cached, ok := r.Snapshot()
	require.True(t, ok)
	assert.Same(t, snapshot, cached)

	contract, ok := r.Contract("0xBB")
	require.True(t, ok)
	assert.Equal(t, "c0xbb", contract.Name)

	stored, err := store.GetContracts(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPartialRefreshKeepsCompleteSnapshot(t *testing.T) {
	runner := &fakeRunner{results: []*subgraph.Result{
		result(nil, "0xaa", "0xbb"),
		result(errors.New("boom"), "0xaa"),
	}}
	r := New(runner, nil, &config.RefresherConfig{Schedule: "@every 1h"})
	ctx := context.Background()

	first, err := r.Refresh(ctx)
	require.NoError(t, err)

	second, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, second.Complete)
	assert.Equal(t, "boom", second.Error)

	cached, ok := r.Snapshot()
	require.True(t, ok)
	assert.Same(t, first, cached)
}

func TestPartialRefreshWithoutSnapshotIsCached(t *testing.T) {
	runner := &fakeRunner{results: []*subgraph.Result{result(errors.New("boom"), "0xaa")}}
	r := New(runner, nil, &config.RefresherConfig{Schedule: "@every 1h"})

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	cached, ok := r.Snapshot()
	require.True(t, ok)
	assert.False(t, cached.Complete)
	assert.Len(t, cached.Contracts, 1)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := New(&fakeRunner{results: []*subgraph.Result{result(nil)}}, nil, &config.RefresherConfig{Schedule: "not a schedule"})

	err := r.Start(context.Background())
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))
}

func TestStartRunsInitialRefresh(t *testing.T) {
	runner := &fakeRunner{results: []*subgraph.Result{result(nil, "0xaa")}}
	r := New(runner, nil, &config.RefresherConfig{Schedule: "@every 1h"})

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		_, ok := r.Snapshot()
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, runner.Calls())
}

type recordingNotifier struct {
	changes []*notification.ContractChange
}

func (n *recordingNotifier) NotifyContractsChanged(ctx context.Context, change *notification.ContractChange) error {
	n.changes = append(n.changes, change)
	return nil
}

func TestRefreshNotifiesChanges(t *testing.T) {
	runner := &fakeRunner{results: []*subgraph.Result{
		result(nil, "0xaa", "0xbb"),
		result(nil, "0xaa", "0xbb"),
		result(errors.New("boom"), "0xaa"),
		result(nil, "0xaa", "0xcc"),
	}}
	notifier := &recordingNotifier{}
	r := New(runner, nil, &config.RefresherConfig{Schedule: "@every 1h"}).WithNotifier(notifier)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := r.Refresh(ctx)
		require.NoError(t, err)
	}

	require.Len(t, notifier.changes, 1)
	assert.Equal(t, []string{"0xcc"}, notifier.changes[0].Added)
	assert.Equal(t, []string{"0xbb"}, notifier.changes[0].Removed)
	assert.Equal(t, 2, notifier.changes[0].Total)
}
