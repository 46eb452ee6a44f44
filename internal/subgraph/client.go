package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// MaxPageSize is the largest page the subgraph serves in one query
const MaxPageSize = 1000

// DefaultTimeout is the deadline of a single page query
const DefaultTimeout = 1500 * time.Millisecond

const predictContractsQuery = `
{
    predictContracts(skip:%d, first:%d){
        id
        token {
            id
            name
            symbol
            nft {
                owner {
                    id
                }
                nftData {
                    key
                    value
                }
            }
        }
        blocksPerEpoch
        blocksPerSubscription
        truevalSubmitTimeoutBlock
    }
}
`

// PageQuerier fetches one page of prediction contracts
type PageQuerier interface {
	QueryPage(ctx context.Context, offset, pageSize int) ([]models.RawContractRecord, error)
}

// Client talks to the subgraph GraphQL endpoint
type Client struct {
	url            string
	timeout        time.Duration
	http           *resty.Client
	log            *logrus.Entry
	metricsManager *metrics.Manager
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type predictContractsResponse struct {
	Data *struct {
		PredictContracts *[]models.RawContractRecord `json:"predictContracts"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// NewClient creates a subgraph client. A non-positive timeout selects DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		url:     url,
		timeout: timeout,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		log: utils.NewSublogger("subgraph-client"),
	}
}

// WithMetrics enables query metrics
func (c *Client) WithMetrics(m *metrics.Manager) *Client {
	c.metricsManager = m
	return c
}

// URL returns the endpoint the client queries
func (c *Client) URL() string {
	return c.url
}

// BuildPageQuery renders the predictContracts query for one page
func BuildPageQuery(offset, pageSize int) string {
	return fmt.Sprintf(predictContractsQuery, offset, pageSize)
}

// QueryPage fetches the prediction contracts in [offset, offset+pageSize).
// pageSize is capped at MaxPageSize. An empty result marks the end of the data.
func (c *Client) QueryPage(ctx context.Context, offset, pageSize int) ([]models.RawContractRecord, error) {
	if offset < 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Offset must not be negative", fmt.Sprint(offset))
	}
	if pageSize <= 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Page size must be positive", fmt.Sprint(pageSize))
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := BuildPageQuery(offset, pageSize)

	start := time.Now()
	body, err := c.Query(ctx, query)
	if err != nil {
		c.record("error", start)
		return nil, err
	}

	var resp predictContractsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.record("malformed", start)
		return nil, &MalformedResponseError{URL: c.url, Reason: "invalid JSON body", Err: err}
	}

	if resp.Data == nil || resp.Data.PredictContracts == nil {
		c.record("malformed", start)
		reason := "missing data.predictContracts"
		if len(resp.Errors) > 0 {
			messages := make([]string, len(resp.Errors))
			for i, e := range resp.Errors {
				messages[i] = e.Message
			}
			reason = reason + ": " + strings.Join(messages, "; ")
		}
		return nil, &MalformedResponseError{URL: c.url, Reason: reason}
	}

	c.record("ok", start)

	c.log.WithFields(logrus.Fields{
		"offset":    offset,
		"page_size": pageSize,
		"count":     len(*resp.Data.PredictContracts),
	}).Debug("Fetched subgraph page")

	return *resp.Data.PredictContracts, nil
}

// Query posts a raw GraphQL query and returns the response body
func (c *Client) Query(ctx context.Context, query string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(graphQLRequest{Query: query}).
		Post(c.url)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: c.url, Timeout: c.timeout.String(), Err: err}
		}
		return nil, &QueryError{URL: c.url, Query: query, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &QueryError{URL: c.url, StatusCode: resp.StatusCode(), Query: query}
	}

	return resp.Body(), nil
}

func (c *Client) record(status string, start time.Time) {
	if c.metricsManager != nil {
		c.metricsManager.GetPrometheusMetrics().RecordSubgraphQuery(status, time.Since(start))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
