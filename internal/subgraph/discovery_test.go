package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
)

type pageCall struct {
	offset   int
	pageSize int
}

// fakeQuerier serves canned pages in call order; errs injects a failure for a given call
type fakeQuerier struct {
	pages [][]models.RawContractRecord
	errs  map[int]error
	calls []pageCall
}

func (f *fakeQuerier) QueryPage(ctx context.Context, offset, pageSize int) ([]models.RawContractRecord, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, pageCall{offset: offset, pageSize: pageSize})

	if err, ok := f.errs[idx]; ok {
		return nil, err
	}
	if idx < len(f.pages) {
		return f.pages[idx], nil
	}
	return nil, nil
}

func pair(value string) models.NFTDataItem {
	return models.NFTDataItem{Key: encodedPair, Value: value}
}

func TestDiscoverAllStopsOnFullyFilteredPage(t *testing.T) {
	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{
			{
				record("c1", "owner", pair("0x123")),
				record("c2", "owner", pair("0x123")),
				record("c3", "owner"),
			},
			{
				record("c4", "owner", pair("0x456")),
				record("c5", "stranger", pair("0x123")),
			},
			{
				record("c6", "owner", pair("0x123")),
			},
		},
	}

	d := NewDiscoverer(querier, []string{"owner"}, models.FilterSpec{"pair": {"0x123"}})
	contracts := d.DiscoverAll(context.Background())

	assert.Len(t, contracts, 3)
	for _, id := range []string{"c1", "c2", "c3"} {
		require.Contains(t, contracts, id)
	}
	assert.NotContains(t, contracts, "c6", "pages after a fully filtered page are not fetched")

	require.Len(t, querier.calls, 2)
	assert.Equal(t, pageCall{offset: 0, pageSize: 1000}, querier.calls[0])
	assert.Equal(t, pageCall{offset: 1000, pageSize: 1000}, querier.calls[1])
}

func TestDiscoverNormalizesRecords(t *testing.T) {
	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{{record("c1", "owner")}},
	}

	contracts := NewDiscoverer(querier, []string{"owner"}, nil).DiscoverAll(context.Background())
	require.Contains(t, contracts, "c1")

	assert.Equal(t, &models.NormalizedContract{
		Name:                  "token-c1",
		Address:               "c1",
		Symbol:                "SYM-c1",
		BlocksPerEpoch:        300,
		BlocksPerSubscription: 86400,
		LastSubmittedEpoch:    0,
	}, contracts["c1"])
}

func TestDiscoverOverwritesDuplicates(t *testing.T) {
	first := record("c1", "owner")
	second := record("c1", "owner")
	second.Token.Name = "renamed"

	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{{first}, {second}},
	}

	result := NewDiscoverer(querier, []string{"owner"}, nil).Discover(context.Background())
	require.Len(t, result.Contracts, 1)
	assert.Equal(t, "renamed", result.Contracts["c1"].Name)
	assert.Equal(t, 3, result.Pages)
	assert.True(t, result.Complete())
}

func TestDiscoverReturnsPartialResultsOnFailure(t *testing.T) {
	failure := &QueryError{URL: "http://subgraph", StatusCode: http.StatusInternalServerError}
	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{
			{record("c1", "owner"), record("c2", "owner")},
		},
		errs: map[int]error{1: failure},
	}

	m := metrics.NewManager()
	result := NewDiscoverer(querier, []string{"owner"}, nil).WithMetrics(m).Discover(context.Background())

	assert.Len(t, result.Contracts, 2)
	assert.False(t, result.Complete())
	assert.True(t, errors.Is(result.Err, failure))
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GetPrometheusMetrics().DiscoveryRunsTotal.WithLabelValues("partial")))
}

func TestDiscoverAllFirstPageFailure(t *testing.T) {
	querier := &fakeQuerier{
		errs: map[int]error{0: &TimeoutError{URL: "http://subgraph", Timeout: "1.5s"}},
	}

	contracts := NewDiscoverer(querier, []string{"owner"}, nil).DiscoverAll(context.Background())
	assert.NotNil(t, contracts)
	assert.Empty(t, contracts)
}

func TestDiscoverHonoursCancelledContext(t *testing.T) {
	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{{record("c1", "owner")}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewDiscoverer(querier, []string{"owner"}, nil).Discover(ctx)
	assert.Empty(t, result.Contracts)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, querier.calls)
}

func TestDiscoverWithPageSize(t *testing.T) {
	querier := &fakeQuerier{
		pages: [][]models.RawContractRecord{{record("c1", "owner")}},
	}

	NewDiscoverer(querier, []string{"owner"}, nil).WithPageSize(50).DiscoverAll(context.Background())
	require.Len(t, querier.calls, 2)
	assert.Equal(t, pageCall{offset: 50, pageSize: 50}, querier.calls[1])

	querier = &fakeQuerier{}
	NewDiscoverer(querier, nil, nil).WithPageSize(5000).DiscoverAll(context.Background())
	assert.Equal(t, 1000, querier.calls[0].pageSize)
}

var skipFirst = regexp.MustCompile(`skip:(\d+), first:(\d+)`)

// End to end over HTTP: three contracts on the first page pass, the second page is
// entirely rejected by the owner filter and stops discovery.
func TestDiscoverAllOverHTTP(t *testing.T) {
	pages := map[int]string{
		0: `[
			{"id":"0xa","token":{"name":"A","symbol":"A","nft":{"owner":{"id":"0xowner"},"nftData":[]}},"blocksPerEpoch":"10","blocksPerSubscription":"100"},
			{"id":"0xb","token":{"name":"B","symbol":"B","nft":{"owner":{"id":"0xowner"},"nftData":null}},"blocksPerEpoch":"10","blocksPerSubscription":"100"},
			{"id":"0xc","token":{"name":"C","symbol":"C","nft":{"owner":{"id":"0xowner"},"nftData":[]}},"blocksPerEpoch":"10","blocksPerSubscription":"100"}
		]`,
		1000: `[
			{"id":"0xd","token":{"name":"D","symbol":"D","nft":{"owner":{"id":"0xother"},"nftData":[]}},"blocksPerEpoch":"10","blocksPerSubscription":"100"}
		]`,
	}

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		m := skipFirst.FindStringSubmatch(req.Query)
		require.Len(t, m, 3)
		skip, _ := strconv.Atoi(m[1])

		body, ok := pages[skip]
		if !ok {
			body = "[]"
		}
		fmt.Fprintf(w, `{"data":{"predictContracts":%s}}`, body)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	contracts := NewDiscoverer(client, []string{"0xowner"}, nil).DiscoverAll(context.Background())

	assert.Len(t, contracts, 3)
	assert.Contains(t, contracts, "0xa")
	assert.Contains(t, contracts, "0xb")
	assert.Contains(t, contracts, "0xc")
	assert.Equal(t, 2, requests)
}
