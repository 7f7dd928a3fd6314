// Package securityapi is the production client for the external
// endpoint-security authority. It implements syncagent.SecuritySource over
// the authority's HTTP API; rate limiting is the engine's concern, transport
// retries on 5xx/connection errors are handled here.
package securityapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/assetwatch/syncagent"
	"github.com/assetwatch/syncagent/internal/config"
)

// Options customizes the client beyond the base URL and token.
type Options struct {
	RetryMax int
	Timeout  time.Duration
}

// Client talks to the authority's REST API.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
}

// NewClient builds a client for the given API base URL. token may be empty
// when the deployment does not require authentication.
func NewClient(baseURL, token string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("securityapi: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "securityapi: invalid base url")
	}
	retry := retryablehttp.NewClient()
	retry.Logger = nil
	if opts.RetryMax > 0 {
		retry.RetryMax = opts.RetryMax
	}
	if opts.Timeout > 0 {
		retry.HTTPClient.Timeout = opts.Timeout
	}
	return &Client{
		http:    retry,
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
	}, nil
}

// NewClientFromEnv builds a client from SECURITY_API_URL and friends.
func NewClientFromEnv() (*Client, error) {
	baseURL := config.String(config.EnvAPIBaseURL, "")
	if baseURL == "" {
		return nil, errors.Errorf("securityapi: %s is not set", config.EnvAPIBaseURL)
	}
	return NewClient(baseURL, config.String(config.EnvAPIToken, ""), Options{
		RetryMax: config.Int(config.EnvAPIRetryMax, 3),
		Timeout:  config.Duration(config.EnvAPITimeout, 30*time.Second),
	})
}

// agentPayload mirrors the authority's agent resource.
type agentPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	LastKeepAlive string `json:"last_keep_alive"`
	OS            struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Arch    string `json:"arch"`
		Kernel  string `json:"kernel"`
	} `json:"os"`
	Hardware struct {
		CPU    string `json:"cpu"`
		Cores  int    `json:"cores"`
		RAMMB  int64  `json:"ram_mb"`
		Serial string `json:"serial"`
	} `json:"hardware"`
	Vulnerabilities struct {
		Critical int `json:"critical"`
		High     int `json:"high"`
		Medium   int `json:"medium"`
		Low      int `json:"low"`
	} `json:"vulnerabilities"`
	SCAScore int                      `json:"sca_score"`
	Controls syncagent.ControlPosture `json:"controls"`
}

// LookupAgent queries the authority for the agent registered under hostname.
// A 404 maps to syncagent.ErrAgentNotFound; any transport failure or
// unexpected status is returned as-is and treated as transient upstream.
func (c *Client) LookupAgent(ctx context.Context, hostname string) (*syncagent.AgentRecord, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, errors.New("securityapi: hostname is required")
	}
	endpoint := fmt.Sprintf("%s/agents?hostname=%s", c.baseURL, url.QueryEscape(hostname))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "securityapi: build lookup request failed")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "securityapi: lookup agent %s failed", hostname)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, syncagent.ErrAgentNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("securityapi: lookup agent %s: unexpected status %d: %s",
			hostname, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload agentPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "securityapi: decode agent %s failed", hostname)
	}
	record, err := payload.toRecord()
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("hostname", hostname).
		Str("agent_id", record.ID).
		Str("status", string(record.Status)).
		Msg("securityapi: agent resolved")
	return record, nil
}

func (p *agentPayload) toRecord() (*syncagent.AgentRecord, error) {
	record := &syncagent.AgentRecord{
		ID:       p.ID,
		Name:     p.Name,
		SCAScore: p.SCAScore,
		Controls: p.Controls,
		OS: syncagent.OSInfo{
			Name:    p.OS.Name,
			Version: p.OS.Version,
			Arch:    p.OS.Arch,
			Kernel:  p.OS.Kernel,
		},
		Hardware: syncagent.HardwareInfo{
			CPU:    p.Hardware.CPU,
			Cores:  p.Hardware.Cores,
			RAMMB:  p.Hardware.RAMMB,
			Serial: p.Hardware.Serial,
		},
		Vulnerabilities: syncagent.SecurityStatus{
			Critical: p.Vulnerabilities.Critical,
			High:     p.Vulnerabilities.High,
			Medium:   p.Vulnerabilities.Medium,
			Low:      p.Vulnerabilities.Low,
		},
	}
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "active":
		record.Status = syncagent.AgentActive
	default:
		// never_connected, pending and disconnected all mean the agent is
		// not reporting right now.
		record.Status = syncagent.AgentDisconnected
	}
	if raw := strings.TrimSpace(p.LastKeepAlive); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "securityapi: parse last_keep_alive %q failed", raw)
		}
		record.LastKeepAlive = ts
	}
	return record, nil
}
