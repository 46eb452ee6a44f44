package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

func contracts(addrs ...string) []*models.NormalizedContract {
	out := make([]*models.NormalizedContract, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, &models.NormalizedContract{Address: addr})
	}
	return out
}

func TestDiffContracts(t *testing.T) {
	change := DiffContracts(contracts("0xAA", "0xbb", "0xdd"), contracts("0xaa", "0xcc", "0xee", "0xdd"))

	assert.Equal(t, []string{"0xcc", "0xee"}, change.Added)
	assert.Equal(t, []string{"0xbb"}, change.Removed)
	assert.Equal(t, 4, change.Total)
	assert.False(t, change.Empty())

	assert.True(t, DiffContracts(contracts("0xaa"), contracts("0xAA")).Empty())
}

func TestValidateWebhookConfig(t *testing.T) {
	err := ValidateWebhookConfig(&config.NotifyConfig{})
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))

	cfg := &config.NotifyConfig{WebhookURL: "http://localhost"}
	require.NoError(t, ValidateWebhookConfig(cfg))
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestNotifyContractsChanged(t *testing.T) {
	var got WebhookPayload
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		token = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(&config.NotifyConfig{
		WebhookURL: srv.URL,
		Headers:    map[string]string{"Authorization": "Bearer secret"},
	})
	require.NoError(t, err)

	change := &ContractChange{Added: []string{"0xaa"}, Removed: []string{}, Total: 1}
	require.NoError(t, sender.NotifyContractsChanged(context.Background(), change))

	assert.Equal(t, "Bearer secret", token)
	assert.Equal(t, EventContractsChanged, got.Event)
	assert.Equal(t, "pdr-utils", got.Source)
	require.NotNil(t, got.Data)
	assert.Equal(t, []string{"0xaa"}, got.Data.Added)
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(&config.NotifyConfig{
		WebhookURL:    srv.URL,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sender.NotifyContractsChanged(context.Background(), &ContractChange{Added: []string{"0xaa"}}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(&config.NotifyConfig{
		WebhookURL:    srv.URL,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	})
	require.NoError(t, err)

	err = sender.NotifyContractsChanged(context.Background(), &ContractChange{Removed: []string{"0xaa"}})
	assert.True(t, utils.HasCode(err, utils.ErrCodeConnection))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
