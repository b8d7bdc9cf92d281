package grafana

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"report_wizard/internal/config"
	"report_wizard/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardJSON = `{
  "dashboard": {
    "templating": {"list": [
      {"name": "host", "current": {"value": ["web-1", "web-2"]}},
      {"name": "env", "current": {"value": "$__all"}}
    ]},
    "panels": [
      {"id": 1, "title": "Failed logins", "type": "stat",
       "targets": [{"refId": "A", "query": "host:(${host:lucene}) AND env:${env} ${Filters:lucene}",
                    "datasource": {"uid": "os-1", "type": "grafana-opensearch-datasource"},
                    "bucketAggs": [{"type": "date_histogram", "settings": {"min_doc_count": "0", "interval": "auto"}}]}]},
      {"id": 2, "title": "Collapsed", "type": "row", "panels": [
        {"id": 3, "title": "Events", "type": "table", "datasource": "legacy-ds", "targets": [{"refId": "A"}, {"refId": "B", "hide": true}]}
      ]},
      {"id": 4, "type": "text"}
    ]
  }
}`

type fakeGrafana struct {
	t         *testing.T
	lastQuery map[string]interface{}
	authSeen  string
}

func (f *fakeGrafana) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		f.authSeen = r.Header.Get("Authorization")
		assert.Equal(f.t, "dash-db", r.URL.Query().Get("type"))
		_, _ = io.WriteString(w, `[
		  {"uid": "abc", "title": "Security", "type": "dash-db", "url": "/d/abc", "tags": ["sec"], "folderTitle": "Ops"},
		  {"uid": "fld", "title": "Folder", "type": "dash-folder"}
		]`)
	})
	mux.HandleFunc("/api/dashboards/uid/abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, dashboardJSON)
	})
	mux.HandleFunc("/api/dashboards/uid/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Dashboard not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/api/datasources", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
		  {"id": 7, "uid": "es-1", "type": "elasticsearch", "isDefault": false},
		  {"id": 9, "uid": "os-1", "type": "grafana-opensearch-datasource", "isDefault": true}
		]`)
	})
	mux.HandleFunc("/api/ds/query", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastQuery))
		_, _ = io.WriteString(w, `{"results": {"A": {"frames": [{
		  "schema": {"fields": [{"name": "Time"}, {"name": "Value", "config": {"displayNameFromDS": "Count"}}]},
		  "data": {"values": [[1700000000000, 1700000060000], [3, 4]]}
		}]}}}`)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGrafana) {
	t.Helper()

	fake := &fakeGrafana{t: t}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := NewClient(config.Grafana{
		URL:             srv.URL + "/",
		APIKey:          "token",
		DatasourceTypes: []string{"grafana-opensearch-datasource", "elasticsearch"},
		Timeout:         5 * time.Second,
	}, logger)
	return client, fake
}

func TestDashboards(t *testing.T) {
	client, fake := newTestClient(t)

	dashboards, err := client.Dashboards(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.Dashboard{{UID: "abc", Title: "Security", URL: "/d/abc", Tags: []string{"sec"}, Folder: "Ops"}}, dashboards)
	assert.Equal(t, "Bearer token", fake.authSeen)
}

func TestDashboardPanelsFlattensRows(t *testing.T) {
	client, _ := newTestClient(t)

	panels, err := client.DashboardPanels(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, panels, 3)

	assert.Equal(t, 1, panels[0].ID)
	assert.Equal(t, "os-1", panels[0].Datasource.UID)
	assert.Equal(t, 3, panels[1].ID)
	assert.Equal(t, "legacy-ds", panels[1].Datasource.Type)
	assert.Equal(t, "Unnamed Panel", panels[2].Title)
}

func TestDashboardPanelsNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.DashboardPanels(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestPanelDataStatTotal(t *testing.T) {
	client, fake := newTestClient(t)

	data, err := client.PanelData(context.Background(), "abc", 1, models.TimeRange{From: "2024-01-01T00:00:00Z", To: "now"})
	require.NoError(t, err)

	assert.Equal(t, []string{"TOTAL"}, data.Fields)
	assert.Equal(t, [][]interface{}{{7.0}}, data.Rows)
	assert.Equal(t, "Event count across time buckets = 7", data.Summary)
	assert.Equal(t, "Failed logins", data.Panel.Title)
	assert.False(t, data.Failed())

	assert.Equal(t, "1704067200000", fake.lastQuery["from"])
	assert.Equal(t, "now", fake.lastQuery["to"])
	assert.Equal(t, "Q1", fake.lastQuery["requestId"])

	queries := fake.lastQuery["queries"].([]interface{})
	require.Len(t, queries, 1)
	q := queries[0].(map[string]interface{})
	assert.Equal(t, "host:(web-1 OR web-2) AND env:* ", q["query"])
	assert.Equal(t, float64(9), q["datasourceId"])
	settings := q["bucketAggs"].([]interface{})[0].(map[string]interface{})["settings"].(map[string]interface{})
	assert.Equal(t, float64(0), settings["min_doc_count"])
	assert.Equal(t, "auto", settings["interval"])
}

func TestPanelDataTableSkipsHiddenTargets(t *testing.T) {
	client, fake := newTestClient(t)

	data, err := client.PanelData(context.Background(), "abc", 3, models.TimeRange{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Time", "Value"}, data.Fields)
	assert.Equal(t, [][]interface{}{
		{"2023-11-14 22:13:20", 3.0},
		{"2023-11-14 22:14:20", 4.0},
	}, data.Rows)
	assert.Equal(t, "2 rows", data.Summary)
	assert.Len(t, fake.lastQuery["queries"], 1)
	assert.Equal(t, "now-24h", fake.lastQuery["from"])
}

func TestPanelDataDefinitionProblems(t *testing.T) {
	client, _ := newTestClient(t)

	data, err := client.PanelData(context.Background(), "abc", 99, models.TimeRange{})
	require.NoError(t, err)
	assert.True(t, data.Failed())
	assert.Equal(t, "Panel not found", data.Panel.Error)

	data, err = client.PanelData(context.Background(), "abc", 4, models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, "No query targets", data.Panel.Error)
}

func TestPickDatasourceFallsBackToNonDefault(t *testing.T) {
	c := &Client{datasourceTypes: []string{"elasticsearch"}}

	ds, ok := c.pickDatasource([]datasource{{ID: 1, Type: "prometheus", IsDefault: true}, {ID: 2, Type: "elasticsearch"}})
	require.True(t, ok)
	assert.Equal(t, 2, ds.ID)

	_, ok = c.pickDatasource([]datasource{{ID: 1, Type: "loki"}})
	assert.False(t, ok)
}

func TestProcessFramesStatSumsCountColumn(t *testing.T) {
	var f frame
	require.NoError(t, json.Unmarshal([]byte(`{
	  "schema": {"fields": [{"name": "host"}, {"name": "Count"}]},
	  "data": {"values": [["a", "b"], [2, 5]]}
	}`), &f))

	data := processFrames("stat", []frame{f})
	assert.Equal(t, [][]interface{}{{7.0}}, data.Rows)
	assert.Equal(t, "Sum of Count column = 7", data.Summary)
}

func TestResolveTemplateVars(t *testing.T) {
	vars := []templateVar{{name: "user", value: "alice"}}
	assert.Equal(t, "user:alice AND *", resolveTemplateVars(vars, "user:${user} AND $__all${Filters}"))
}
