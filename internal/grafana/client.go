// Package grafana is a small client for the parts of the Grafana HTTP API the report
// backend needs: dashboard search, dashboard panels and panel data queries.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"report_wizard/internal/config"
	"report_wizard/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Client talks to a single Grafana instance.
type Client struct {
	baseURL         string
	apiKey          string
	datasourceTypes []string
	httpClient      *http.Client
	limiter         *rate.Limiter
	logger          *logrus.Logger
}

// NewClient creates a Grafana client from configuration.
func NewClient(cfg config.Grafana, logger *logrus.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		apiKey:          cfg.APIKey,
		datasourceTypes: cfg.DatasourceTypes,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		limiter:         rate.NewLimiter(limit, burst),
		logger:          logger,
	}
}

// Dashboards lists dashboards (folders are filtered out).
func (c *Client) Dashboards(ctx context.Context) ([]models.Dashboard, error) {
	var hits []struct {
		UID         string   `json:"uid"`
		Title       string   `json:"title"`
		URL         string   `json:"url"`
		Type        string   `json:"type"`
		Tags        []string `json:"tags"`
		FolderTitle string   `json:"folderTitle"`
	}

	query := url.Values{"type": {"dash-db"}, "limit": {"100"}}
	if err := c.getJSON(ctx, "/api/search", query, &hits); err != nil {
		return nil, err
	}

	dashboards := make([]models.Dashboard, 0, len(hits))
	for _, h := range hits {
		if h.Type != "dash-db" {
			continue
		}
		dashboards = append(dashboards, models.Dashboard{
			UID:    h.UID,
			Title:  h.Title,
			URL:    h.URL,
			Tags:   h.Tags,
			Folder: h.FolderTitle,
		})
	}
	return dashboards, nil
}

// DashboardPanels returns the panels of a dashboard, including panels nested in rows.
func (c *Client) DashboardPanels(ctx context.Context, uid string) ([]models.Panel, error) {
	dash, err := c.dashboard(ctx, uid)
	if err != nil {
		return nil, err
	}

	raw := extractPanels(dash)
	panels := make([]models.Panel, 0, len(raw))
	for _, p := range raw {
		ds := panelDatasource(p)
		panels = append(panels, models.Panel{
			ID:          intValue(p["id"]),
			Title:       stringOr(p["title"], "Unnamed Panel"),
			Type:        stringOr(p["type"], ""),
			Description: stringOr(p["description"], ""),
			Datasource:  &ds,
		})
	}
	return panels, nil
}

func (c *Client) dashboard(ctx context.Context, uid string) (map[string]interface{}, error) {
	var resp struct {
		Dashboard map[string]interface{} `json:"dashboard"`
	}
	if err := c.getJSON(ctx, "/api/dashboards/uid/"+url.PathEscape(uid), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Dashboard == nil {
		resp.Dashboard = map[string]interface{}{}
	}
	return resp.Dashboard, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("grafana %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("grafana %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("grafana %s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
