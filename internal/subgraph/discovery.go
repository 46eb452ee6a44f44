package subgraph

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// Discoverer finds the prediction contracts an agent is interested in
type Discoverer struct {
	client         PageQuerier
	owners         []string
	spec           models.FilterSpec
	pageSize       int
	log            *logrus.Entry
	metricsManager *metrics.Manager
}

// Result is the outcome of one discovery run
type Result struct {
	Contracts map[string]*models.NormalizedContract
	Pages     int
	Duration  time.Duration
	// Err is the failure that stopped pagination, nil when the run reached the end.
	Err error
}

// Complete reports whether pagination ended without a failure
func (r *Result) Complete() bool {
	return r.Err == nil
}

// NewDiscoverer creates a discoverer keeping contracts owned by owners and accepted by spec
func NewDiscoverer(client PageQuerier, owners []string, spec models.FilterSpec) *Discoverer {
	return &Discoverer{
		client:   client,
		owners:   owners,
		spec:     spec,
		pageSize: MaxPageSize,
		log:      utils.NewSublogger("discovery"),
	}
}

// WithPageSize overrides the page size, capped at MaxPageSize
func (d *Discoverer) WithPageSize(pageSize int) *Discoverer {
	if pageSize > 0 && pageSize <= MaxPageSize {
		d.pageSize = pageSize
	}
	return d
}

// WithMetrics enables discovery metrics
func (d *Discoverer) WithMetrics(m *metrics.Manager) *Discoverer {
	d.metricsManager = m
	return d
}

// DiscoverAll returns the discovered contracts keyed by address.
// Failures are logged and end the run early; whatever was collected so far is returned.
func (d *Discoverer) DiscoverAll(ctx context.Context) map[string]*models.NormalizedContract {
	return d.Discover(ctx).Contracts
}

// Discover pages through predictContracts until a page has no contract passing the
// filters. Note that a page where every contract is filtered out ends the run even if
// later pages hold matches.
func (d *Discoverer) Discover(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{
		Contracts: make(map[string]*models.NormalizedContract),
	}

	for offset := 0; ; offset += d.pageSize {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		page, err := d.client.QueryPage(ctx, offset, d.pageSize)
		if err != nil {
			result.Err = err
			break
		}
		result.Pages++
		if d.metricsManager != nil {
			d.metricsManager.GetPrometheusMetrics().RecordDiscoveryPage()
		}

		filtered := FilterContracts(page, d.owners, d.spec)
		if len(filtered) == 0 {
			break
		}

		for i := range filtered {
			contract := filtered[i].Normalize()
			result.Contracts[contract.Address] = contract
		}
	}

	result.Duration = time.Since(start)

	fields := logrus.Fields{
		"pages":     result.Pages,
		"contracts": len(result.Contracts),
		"duration":  result.Duration,
	}
	status := "complete"
	if result.Err != nil {
		status = "partial"
		d.log.WithFields(fields).WithError(result.Err).Error("Contract discovery stopped early, returning partial results")
	} else {
		d.log.WithFields(fields).Info("Contract discovery finished")
	}

	if d.metricsManager != nil {
		d.metricsManager.GetPrometheusMetrics().RecordDiscoveryRun(status, len(result.Contracts), result.Duration)
	}

	return result
}
