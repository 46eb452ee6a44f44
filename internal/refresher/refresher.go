package refresher

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/internal/notification"
	"github.com/oceanprotocol/pdr-utils/internal/storage"
	"github.com/oceanprotocol/pdr-utils/internal/subgraph"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

const (
	snapshotKey       = "snapshot"
	contractKeyPrefix = "contract:"
)

// Runner performs one discovery run; *subgraph.Discoverer satisfies it
type Runner interface {
	Discover(ctx context.Context) *subgraph.Result
}

// Notifier is told about contract set changes; *notification.WebhookSender satisfies it
type Notifier interface {
	NotifyContractsChanged(ctx context.Context, change *notification.ContractChange) error
}

// Snapshot is the contract set produced by the latest refresh
type Snapshot struct {
	Contracts   []*models.NormalizedContract `json:"contracts"`
	Pages       int                          `json:"pages"`
	Complete    bool                         `json:"complete"`
	Error       string                       `json:"error,omitempty"`
	RefreshedAt time.Time                    `json:"refreshed_at"`
	Duration    time.Duration                `json:"duration"`
}

// Refresher re-runs discovery on a cron schedule, persists the contracts it finds
// and keeps the latest snapshot in memory.
type Refresher struct {
	runner         Runner
	store          storage.Storage
	schedule       string
	cache          *cache.Cache
	cron           *cron.Cron
	mu             sync.Mutex
	logger         *logrus.Entry
	metricsManager *metrics.Manager
	notifier       Notifier
}

// New creates a refresher; store may be nil to keep results in memory only
func New(runner Runner, store storage.Storage, cfg *config.RefresherConfig) *Refresher {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	logger := utils.NewSublogger("refresher")

	return &Refresher{
		runner:   runner,
		store:    store,
		schedule: cfg.Schedule,
		cache:    cache.New(ttl, 2*ttl),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		)),
		logger: logger,
	}
}

// WithMetrics enables refresher metrics
func (r *Refresher) WithMetrics(m *metrics.Manager) *Refresher {
	r.metricsManager = m
	return r
}

// WithNotifier reports added and removed contracts after each complete refresh
func (r *Refresher) WithNotifier(n Notifier) *Refresher {
	r.notifier = n
	return r
}

// Start schedules periodic refreshes and runs the first one in the background
func (r *Refresher) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.WithError(err).Error("Scheduled refresh failed")
		}
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid refresh schedule", err.Error())
	}

	r.cron.Start()
	r.logger.WithField("schedule", r.schedule).Info("Refresher started")

	go func() {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.WithError(err).Error("Initial refresh failed")
		}
	}()
	return nil
}

// Stop stops scheduling and waits for a running refresh to finish
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Refresher stopped")
}

// Refresh runs discovery once. Runs are serialised. Contracts found by a partial
// run are persisted, but a partial run only replaces the cached snapshot when
// there is none yet.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.runner.Discover(ctx)
	snapshot := newSnapshot(result)

	r.logger.WithFields(logrus.Fields{
		"contracts": len(snapshot.Contracts),
		"pages":     snapshot.Pages,
		"complete":  snapshot.Complete,
	}).Info("Refresh finished")

	var storeErr error
	if r.store != nil && len(snapshot.Contracts) > 0 {
		if storeErr = r.store.SaveContracts(ctx, snapshot.Contracts); storeErr != nil {
			r.logger.WithError(storeErr).Error("Failed to persist discovered contracts")
		}
	}
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("refresher", snapshot.Complete && storeErr == nil)
	}

	previous, cached := r.Snapshot()
	if snapshot.Complete || !cached {
		r.cache.Set(snapshotKey, snapshot, cache.DefaultExpiration)
	}
	if snapshot.Complete && cached && previous.Complete {
		r.notify(ctx, notification.DiffContracts(previous.Contracts, snapshot.Contracts))
	}
	for _, contract := range snapshot.Contracts {
		r.cache.Set(contractKeyPrefix+strings.ToLower(contract.Address), contract, cache.DefaultExpiration)
	}

	return snapshot, storeErr
}

func (r *Refresher) notify(ctx context.Context, change *notification.ContractChange) {
	if r.notifier == nil || change.Empty() {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"added":   len(change.Added),
		"removed": len(change.Removed),
	}).Info("Contract set changed")
	if err := r.notifier.NotifyContractsChanged(ctx, change); err != nil {
		r.logger.WithError(err).Warn("Failed to deliver change notification")
	}
}

// Snapshot returns the cached result of the latest refresh
func (r *Refresher) Snapshot() (*Snapshot, bool) {
	v, ok := r.cache.Get(snapshotKey)
	if !ok {
		return nil, false
	}
	return v.(*Snapshot), true
}

// Contract returns a cached contract by address
func (r *Refresher) Contract(address string) (*models.NormalizedContract, bool) {
	v, ok := r.cache.Get(contractKeyPrefix + strings.ToLower(address))
	if !ok {
		return nil, false
	}
	return v.(*models.NormalizedContract), true
}

func newSnapshot(result *subgraph.Result) *Snapshot {
	contracts := make([]*models.NormalizedContract, 0, len(result.Contracts))
	for _, contract := range result.Contracts {
		contracts = append(contracts, contract)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].Address < contracts[j].Address
	})

	snapshot := &Snapshot{
		Contracts:   contracts,
		Pages:       result.Pages,
		Complete:    result.Complete(),
		RefreshedAt: time.Now().UTC(),
		Duration:    result.Duration,
	}
	if result.Err != nil {
		snapshot.Error = result.Err.Error()
	}
	return snapshot
}
