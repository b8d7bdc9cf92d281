package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"report_wizard/internal/models"
	"report_wizard/internal/wizard"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 0, testLogger())
}

func TestDashboardsAndPanels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/dashboards", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"dashboards":[{"uid":"abc","title":"SOC"}]}`)
	})
	mux.HandleFunc("/reports/panels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("dashboard_uid"))
		_, _ = io.WriteString(w, `{"panels":[{"id":1,"title":"Alerts","type":"stat"},{"id":2,"title":"Events","type":"table"}]}`)
	})
	c := newTestClient(t, mux)

	dashboards, err := c.Dashboards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Dashboard{{UID: "abc", Title: "SOC"}}, dashboards)

	panels, err := c.Panels(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, panels, 2)
	assert.Equal(t, 2, panels[1].ID)
	assert.Equal(t, "table", panels[1].Type)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "detail", status: http.StatusInternalServerError, body: `{"detail":"Grafana down"}`, want: "Grafana down"},
		{name: "error", status: http.StatusBadRequest, body: `{"error":"invalid time_range"}`, want: "invalid time_range"},
		{name: "plain", status: http.StatusBadGateway, body: "bad gateway\n", want: "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			_, err := c.Dashboards(context.Background())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestUploadLogo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/upload-logo", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "logo.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "png-bytes", string(data))

		_ = json.NewEncoder(w).Encode(map[string]string{"path": "/static/uploads/x.png", "filename": "x.png"})
	}))

	uploaded, err := c.UploadLogo(context.Background(), wizard.LogoFile{
		Name: "logo.png", ContentType: "image/png", Data: []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, wizard.UploadedLogo{Path: "/static/uploads/x.png", Filename: "x.png"}, uploaded)
}

func TestGenerateReport(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/generate-from-panels", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.JSONEq(t, `[{"uid":"abc","panels":[1,2]},{"uid":"def","panels":[7]}]`, r.FormValue("dashboards"))
		assert.Equal(t, "abc", r.FormValue("dashboard_uid"))
		assert.JSONEq(t, `[1,2]`, r.FormValue("panel_ids"))
		assert.JSONEq(t, `{"from":"now-24h","to":"now"}`, r.FormValue("time_range"))
		assert.Equal(t, "Weekly", r.FormValue("report_title"))
		assert.Equal(t, "Acme", r.FormValue("company_name"))
		_, hasLogo := r.MultipartForm.Value["logo_path"]
		assert.False(t, hasLogo, "optional fields are omitted when empty")

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="Weekly_20260102_030405.xlsx"`)
		_, _ = io.WriteString(w, "xlsx-bytes")
	}))

	report, err := c.GenerateReport(context.Background(), wizard.GenerateRequest{
		Dashboards: []wizard.DashboardPanels{
			{UID: "abc", Panels: []int{1, 2}},
			{UID: "def", Panels: []int{7}},
		},
		DashboardUID: "abc",
		PanelIDs:     []int{1, 2},
		TimeRange:    models.TimeRange{From: "now-24h", To: "now"},
		Title:        "Weekly",
		CompanyName:  "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "Weekly_20260102_030405.xlsx", report.Filename)
	assert.Equal(t, []byte("xlsx-bytes"), report.Data)
}

func TestFilenameFromDisposition(t *testing.T) {
	def := wizard.DefaultDownloadName
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: def},
		{header: "attachment", want: def},
		{header: `attachment; filename="report.xlsx"`, want: "report.xlsx"},
		{header: `attachment; filename=plain.xlsx`, want: "plain.xlsx"},
		{header: `attachment; filename="../../etc/x.xlsx"`, want: "x.xlsx"},
		{header: `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.xlsx`, want: "résumé.xlsx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromDisposition(tt.header, def), tt.header)
	}
}

func TestDirDownloader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	d := DirDownloader{Dir: dir}

	first, err := d.Download("report.xlsx", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.xlsx"), first)

	second, err := d.Download("../report.xlsx", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report (1).xlsx"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestReadLogoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Logo.PNG")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	logo, err := ReadLogoFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Logo.PNG", logo.Name)
	assert.Equal(t, "image/png", logo.ContentType)
	assert.NoError(t, wizard.ValidateLogo(logo))

	_, err = ReadLogoFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
