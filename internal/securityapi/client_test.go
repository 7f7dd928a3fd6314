package securityapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetwatch/syncagent"
)

const agentJSON = `{
	"id": "007",
	"name": "web-01",
	"status": "active",
	"last_keep_alive": "2026-05-01T10:30:00Z",
	"os": {"name": "Ubuntu", "version": "24.04", "arch": "x86_64"},
	"hardware": {"cpu": "EPYC 7543", "cores": 32, "ram_mb": 131072},
	"vulnerabilities": {"critical": 1, "high": 2, "medium": 3, "low": 4},
	"sca_score": 88,
	"controls": {"antivirus": true, "firewall": true, "disk_encryption": false, "patches_up_to_date": true}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, "test-token", Options{RetryMax: 1})
	require.NoError(t, err)
	return client
}

func TestLookupAgentActive(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents", r.URL.Path)
		assert.Equal(t, "web-01", r.URL.Query().Get("hostname"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(agentJSON))
	})

	record, err := client.LookupAgent(context.Background(), "web-01")
	require.NoError(t, err)
	assert.Equal(t, "007", record.ID)
	assert.Equal(t, syncagent.AgentActive, record.Status)
	assert.Equal(t, "Ubuntu", record.OS.Name)
	assert.Equal(t, int64(131072), record.Hardware.RAMMB)
	assert.Equal(t, 1, record.Vulnerabilities.Critical)
	assert.Equal(t, 88, record.SCAScore)
	assert.True(t, record.Controls.Antivirus)
	assert.False(t, record.Controls.DiskEncryption)
	assert.Equal(t, 3, record.Controls.Satisfied())
	assert.Equal(t, 2026, record.LastKeepAlive.Year())
}

func TestLookupAgentNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such agent", http.StatusNotFound)
	})
	_, err := client.LookupAgent(context.Background(), "ghost")
	assert.ErrorIs(t, err, syncagent.ErrAgentNotFound)
}

func TestLookupAgentDisconnectedStatuses(t *testing.T) {
	for _, status := range []string{"disconnected", "never_connected", "pending"} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id":"1","name":"x","status":"` + status + `"}`))
		})
		record, err := client.LookupAgent(context.Background(), "x")
		require.NoError(t, err, status)
		assert.Equal(t, syncagent.AgentDisconnected, record.Status, status)
	}
}

func TestLookupAgentServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := client.LookupAgent(context.Background(), "web-01")
	require.Error(t, err)
	assert.NotErrorIs(t, err, syncagent.ErrAgentNotFound)
}

func TestLookupAgentBadKeepAlive(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","status":"active","last_keep_alive":"yesterday"}`))
	})
	_, err := client.LookupAgent(context.Background(), "web-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last_keep_alive")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "", Options{})
	assert.Error(t, err)
}
