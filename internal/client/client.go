// Package client is the wizard's HTTP client for the report backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"report_wizard/internal/models"
	"report_wizard/internal/wizard"

	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4096

// APIError is a non-2xx reply from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Client implements wizard.Backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a client for the backend at baseURL. A zero timeout means none.
func New(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Dashboards fetches GET /reports/dashboards.
func (c *Client) Dashboards(ctx context.Context) ([]models.Dashboard, error) {
	var body struct {
		Dashboards []models.Dashboard `json:"dashboards"`
	}
	if err := c.getJSON(ctx, "/reports/dashboards", nil, &body); err != nil {
		return nil, fmt.Errorf("load dashboards: %w", err)
	}
	if body.Dashboards == nil {
		body.Dashboards = []models.Dashboard{}
	}
	return body.Dashboards, nil
}

// Panels fetches GET /reports/panels for one dashboard.
func (c *Client) Panels(ctx context.Context, dashboardUID string) ([]models.Panel, error) {
	var body struct {
		Panels []models.Panel `json:"panels"`
	}
	query := url.Values{"dashboard_uid": {dashboardUID}}
	if err := c.getJSON(ctx, "/reports/panels", query, &body); err != nil {
		return nil, fmt.Errorf("load panels of %s: %w", dashboardUID, err)
	}
	if body.Panels == nil {
		body.Panels = []models.Panel{}
	}
	return body.Panels, nil
}

// UploadLogo posts the file as multipart field "file".
func (c *Client) UploadLogo(ctx context.Context, logo wizard.LogoFile) (wizard.UploadedLogo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, logo.Name))
	header.Set("Content-Type", logo.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return wizard.UploadedLogo{}, err
	}
	if _, err := part.Write(logo.Data); err != nil {
		return wizard.UploadedLogo{}, err
	}
	if err := mw.Close(); err != nil {
		return wizard.UploadedLogo{}, err
	}

	resp, err := c.post(ctx, "/reports/upload-logo", mw.FormDataContentType(), &buf)
	if err != nil {
		return wizard.UploadedLogo{}, fmt.Errorf("upload logo: %w", err)
	}
	defer resp.Body.Close()

	var uploaded wizard.UploadedLogo
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return wizard.UploadedLogo{}, fmt.Errorf("upload logo: decode response: %w", err)
	}
	if uploaded.Path == "" {
		return wizard.UploadedLogo{}, fmt.Errorf("upload logo: response has no path")
	}
	return uploaded, nil
}

// GenerateReport posts the multipart generation form and reads back the file.
func (c *Client) GenerateReport(ctx context.Context, req wizard.GenerateRequest) (*wizard.Report, error) {
	body, contentType, err := EncodeGenerateForm(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/reports/generate-from-panels", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate report: read response: %w", err)
	}

	return &wizard.Report{
		Filename:    FilenameFromDisposition(resp.Header.Get("Content-Disposition"), wizard.DefaultDownloadName),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// EncodeGenerateForm builds the multipart body of a generation request.
func EncodeGenerateForm(req wizard.GenerateRequest) (*bytes.Buffer, string, error) {
	dashboards, err := json.Marshal(req.Dashboards)
	if err != nil {
		return nil, "", err
	}
	panelIDs := req.PanelIDs
	if panelIDs == nil {
		panelIDs = []int{}
	}
	legacyIDs, err := json.Marshal(panelIDs)
	if err != nil {
		return nil, "", err
	}
	timeRange, err := json.Marshal(req.TimeRange)
	if err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"dashboards", string(dashboards)},
		{"dashboard_uid", req.DashboardUID},
		{"panel_ids", string(legacyIDs)},
		{"time_range", string(timeRange)},
		{"report_title", req.Title},
	}
	if req.CompanyName != "" {
		fields = append(fields, [2]string{"company_name", req.CompanyName})
	}
	if req.LogoPath != "" {
		fields = append(fields, [2]string{"logo_path", req.LogoPath})
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// FilenameFromDisposition extracts the attachment filename, falling back to def.
func FilenameFromDisposition(header, def string) string {
	if header == "" {
		return def
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return def
	}
	name := params["filename"]
	// keep only the base name; the server does not get to pick directories
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return def
	}
	return name
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// do sends the request and turns non-2xx replies into *APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return resp, nil
}

// errorMessage pulls "detail" or "error" out of a JSON error body.
func errorMessage(data []byte) string {
	var body struct {
		Detail  interface{} `json:"detail"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Detail != nil:
			if s, ok := body.Detail.(string); ok {
				return s
			}
			encoded, _ := json.Marshal(body.Detail)
			return string(encoded)
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
