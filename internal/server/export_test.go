package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"report_wizard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func openExcel(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = wb.Close() })
	return wb
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestListDatasources(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/reports/datasources", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"datasources":[{"id":7,"uid":"es-1","name":"ES","type":"elasticsearch"}]}`, rec.Body.String())
}

func TestListIndices(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/reports/indices?datasource_id=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"indices":["logs-2024.01","logs-2024.02"]}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/reports/indices", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "datasource_id is required", decodeBody(t, rec)["error"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/reports/indices?datasource_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/reports/indices?datasource_id=8", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "unsupported datasource type")
}

func TestListFields(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/reports/fields?datasource_id=7&index=logs-*", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fields":[{"name":"source.ip","type":"ip"},{"name":"user","type":"keyword"}]}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/reports/fields?datasource_id=7", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateExport(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(formRequest("/reports/generate", url.Values{
		"datasource_id": {"7"},
		"index":         {"logs-*"},
		"fields":        {"user", "source.ip"},
		"filters":       {`{"status": "failed", "host": ["web-1"]}`},
		"report_format": {"xlsx"},
		"report_title":  {"Failed Logins"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"user", "source.ip"}, env.index.gotFields)
	assert.Equal(t, map[string]interface{}{"status": "failed", "host": []interface{}{"web-1"}}, env.index.gotFilters)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Failed_Logins_")
	assert.NotEmpty(t, rec.Header().Get("X-Report-ID"))

	wb := openExcel(t, rec.Body.Bytes())
	assert.Equal(t, []string{"Security Report"}, wb.GetSheetList())
	ip, _ := wb.GetCellValue("Security Report", "B5")
	assert.Equal(t, "10.0.0.1", ip)

	var count int64
	require.NoError(t, env.db.Model(&models.GeneratedReport{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGenerateExportRejects(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{
			name: "csv",
			form: url.Values{"datasource_id": {"7"}, "index": {"logs"}, "fields": {"user"}, "report_format": {"csv"}},
			want: "unsupported report format",
		},
		{
			name: "bad filters",
			form: url.Values{"datasource_id": {"7"}, "index": {"logs"}, "fields": {"user"}, "filters": {"[1"}},
			want: "filters must be a JSON object",
		},
		{
			name: "no fields",
			form: url.Values{"datasource_id": {"7"}, "index": {"logs"}},
			want: "at least one field",
		},
		{
			name: "no datasource",
			form: url.Values{"index": {"logs"}, "fields": {"user"}},
			want: "datasource_id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(formRequest("/reports/generate", tt.form))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.want)
		})
	}
}
