package grafana

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"report_wizard/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	queryIntervalMs    = 60000
	queryMaxDataPoints = 500

	// epochMsThreshold separates millisecond timestamps from ordinary numbers
	epochMsThreshold = 1e12
	timestampLayout  = "2006-01-02 15:04:05"
)

// target keys copied verbatim from a panel target into the query
var passthroughKeys = []string{"alias", "bucketAggs", "metrics", "timeField", "format", "queryType", "luceneQueryType", "query"}

type datasource struct {
	ID        int    `json:"id"`
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsDefault bool   `json:"isDefault"`
}

type frameField struct {
	Name   string `json:"name"`
	Config struct {
		DisplayNameFromDS string `json:"displayNameFromDS"`
	} `json:"config"`
}

type frame struct {
	Schema struct {
		Fields []frameField `json:"fields"`
	} `json:"schema"`
	Data struct {
		Values [][]interface{} `json:"values"`
	} `json:"data"`
}

type queryResponse struct {
	Results map[string]struct {
		Error  string  `json:"error"`
		Frames []frame `json:"frames"`
	} `json:"results"`
}

// PanelData queries a panel's targets over the time range and normalises the result
// into a table. Problems with the panel definition itself (missing panel, no targets,
// no usable datasource) produce an error table rather than an error; transport and
// Grafana API failures are returned as errors.
func (c *Client) PanelData(ctx context.Context, dashboardUID string, panelID int, tr models.TimeRange) (models.PanelData, error) {
	logger := c.logger.WithFields(logrus.Fields{
		"dashboard_uid": dashboardUID,
		"panel_id":      panelID,
	})

	dash, err := c.dashboard(ctx, dashboardUID)
	if err != nil {
		return models.PanelData{}, err
	}

	var panel map[string]interface{}
	for _, p := range extractPanels(dash) {
		if intValue(p["id"]) == panelID {
			panel = p
			break
		}
	}
	if panel == nil {
		return models.ErrorPanelData(panelID, "", "", "Panel not found"), nil
	}

	title := stringOr(panel["title"], "")
	panelType := stringOr(panel["type"], "")

	targets := objects(panel["targets"])
	if len(targets) == 0 {
		return models.ErrorPanelData(panelID, title, panelType, "No query targets"), nil
	}

	var sources []datasource
	if err := c.getJSON(ctx, "/api/datasources", nil, &sources); err != nil {
		return models.PanelData{}, err
	}
	ds, ok := c.pickDatasource(sources)
	if !ok {
		return models.ErrorPanelData(panelID, title, panelType, "No supported datasource found"), nil
	}

	queries := buildQueries(targets, templateVars(dash), ds, panelID)
	if len(queries) == 0 {
		return models.ErrorPanelData(panelID, title, panelType, "No valid queries"), nil
	}

	from, to := tr.From, tr.To
	if from == "" {
		from = "now-24h"
	}
	if to == "" {
		to = "now"
	}

	payload := map[string]interface{}{
		"from":      toGrafanaTime(from),
		"to":        toGrafanaTime(to),
		"queries":   queries,
		"requestId": fmt.Sprintf("Q%d", panelID),
	}
	logger.WithField("queries", len(queries)).Debug("Querying panel data")

	var resp queryResponse
	if err := c.postJSON(ctx, "/api/ds/query", payload, &resp); err != nil {
		return models.PanelData{}, err
	}

	data := processFrames(panelType, collectFrames(resp))
	data.Panel = models.PanelInfo{
		ID:          panelID,
		Title:       title,
		Type:        panelType,
		Description: stringOr(panel["description"], ""),
	}
	return data, nil
}

// pickDatasource prefers the default datasource of a supported type, in the configured order.
func (c *Client) pickDatasource(sources []datasource) (datasource, bool) {
	var fallback *datasource
	for _, typ := range c.datasourceTypes {
		for i := range sources {
			if sources[i].Type != typ {
				continue
			}
			if sources[i].IsDefault {
				return sources[i], true
			}
			if fallback == nil {
				fallback = &sources[i]
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return datasource{}, false
}

func buildQueries(targets []map[string]interface{}, vars []templateVar, ds datasource, panelID int) []map[string]interface{} {
	var queries []map[string]interface{}
	for i, target := range targets {
		if hide, _ := target["hide"].(bool); hide {
			continue
		}

		refID := stringOr(target["refId"], string(rune('A'+i)))
		q := map[string]interface{}{
			"refId":         refID,
			"datasource":    map[string]string{"uid": ds.UID, "type": ds.Type},
			"datasourceId":  ds.ID,
			"intervalMs":    queryIntervalMs,
			"maxDataPoints": queryMaxDataPoints,
			"panelId":       panelID,
		}
		for _, key := range passthroughKeys {
			if v, ok := target[key]; ok {
				q[key] = v
			}
		}

		if query, ok := q["query"].(string); ok {
			q["query"] = resolveTemplateVars(vars, query)
		}

		// Grafana stores numeric bucket settings as strings, the query API wants numbers
		for _, agg := range objects(q["bucketAggs"]) {
			settings, ok := agg["settings"].(map[string]interface{})
			if !ok {
				continue
			}
			for k, v := range settings {
				if s, ok := v.(string); ok && isDigits(s) {
					if n, err := strconv.Atoi(s); err == nil {
						settings[k] = n
					}
				}
			}
		}

		queries = append(queries, q)
	}
	return queries
}

// toGrafanaTime passes relative expressions through and converts RFC 3339 timestamps to epoch ms.
func toGrafanaTime(v string) string {
	if strings.HasPrefix(v, "now") {
		return v
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return v
}

func collectFrames(resp queryResponse) []frame {
	refs := make([]string, 0, len(resp.Results))
	for ref := range resp.Results {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var frames []frame
	for _, ref := range refs {
		frames = append(frames, resp.Results[ref].Frames...)
	}
	return frames
}

// processFrames turns data frames into fields/rows. Stat panels collapse to a single TOTAL.
func processFrames(panelType string, frames []frame) models.PanelData {
	result := models.PanelData{Fields: []string{}, Rows: [][]interface{}{}}
	if len(frames) == 0 {
		return result
	}

	for _, f := range frames {
		if len(result.Fields) == 0 {
			for i, field := range f.Schema.Fields {
				name := field.Name
				if name == "" {
					name = fmt.Sprintf("f%d", i)
				}
				result.Fields = append(result.Fields, name)
			}
		}
		result.Rows = append(result.Rows, transpose(f.Data.Values)...)
	}

	switch panelType {
	case "stat":
		return statTotal(frames[0])
	case "table":
		result.Summary = fmt.Sprintf("%d rows", len(result.Rows))
	case "timeseries":
		result.Summary = fmt.Sprintf("%d points", len(result.Rows))
	default:
		result.Summary = fmt.Sprintf("%d rows (generic parse)", len(result.Rows))
	}
	return result
}

func statTotal(f frame) models.PanelData {
	fields := f.Schema.Fields
	values := f.Data.Values

	total := func(summary string, cols ...[]interface{}) models.PanelData {
		sum := 0.0
		for _, col := range cols {
			for _, v := range col {
				if n, ok := v.(float64); ok {
					sum += n
				}
			}
		}
		return models.PanelData{
			Fields:  []string{"TOTAL"},
			Rows:    [][]interface{}{{sum}},
			Summary: fmt.Sprintf(summary, formatNumber(sum)),
		}
	}

	// terms aggregation
	for i, field := range fields {
		if field.Name == "Count" && i < len(values) {
			return total("Sum of Count column = %s", values[i])
		}
	}

	// date histogram of a count metric
	if len(fields) == 2 && len(values) == 2 && fields[0].Name == "Time" &&
		(fields[1].Name == "Value" || fields[1].Name == "Count") &&
		strings.HasPrefix(strings.ToLower(fields[1].Config.DisplayNameFromDS), "count") {
		return total("Event count across time buckets = %s", values[1])
	}

	return total("Total=%s", values...)
}

func transpose(columns [][]interface{}) [][]interface{} {
	if len(columns) == 0 {
		return nil
	}
	n := len(columns[0])
	for _, col := range columns[1:] {
		if len(col) < n {
			n = len(col)
		}
	}

	rows := make([][]interface{}, n)
	for r := 0; r < n; r++ {
		row := make([]interface{}, len(columns))
		for c, col := range columns {
			row[c] = formatTimestamp(col[r])
		}
		rows[r] = row
	}
	return rows
}

func formatTimestamp(v interface{}) interface{} {
	if n, ok := v.(float64); ok && n > epochMsThreshold {
		return time.UnixMilli(int64(n)).UTC().Format(timestampLayout)
	}
	return v
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
