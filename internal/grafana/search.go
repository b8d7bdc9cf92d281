package grafana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"report_wizard/internal/models"
)

// maxSearchHits is the largest page Elasticsearch returns without scrolling
const maxSearchHits = 10000

// Datasources lists the configured datasources of a searchable type
func (c *Client) Datasources(ctx context.Context) ([]models.Datasource, error) {
	var all []datasource
	if err := c.getJSON(ctx, "/api/datasources", nil, &all); err != nil {
		return nil, err
	}

	out := make([]models.Datasource, 0, len(all))
	for _, ds := range all {
		if c.searchable(ds.Type) {
			out = append(out, models.Datasource{ID: ds.ID, UID: ds.UID, Name: ds.Name, Type: ds.Type})
		}
	}
	return out, nil
}

// Indices lists the index names behind a datasource via the Grafana proxy
func (c *Client) Indices(ctx context.Context, datasourceID int) ([]string, error) {
	var ds datasource
	if err := c.getJSON(ctx, "/api/datasources/"+strconv.Itoa(datasourceID), nil, &ds); err != nil {
		return nil, err
	}
	if !c.searchable(ds.Type) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedDatasource, ds.Type)
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := c.getJSON(ctx, proxyPath(datasourceID, "_cat", "indices"), url.Values{"format": {"json"}}, &rows); err != nil {
		return nil, err
	}

	indices := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Index != "" {
			indices = append(indices, r.Index)
		}
	}
	sort.Strings(indices)
	return indices, nil
}

// Fields returns the mapped fields of an index (or pattern), sorted by name
func (c *Client) Fields(ctx context.Context, datasourceID int, index string) ([]models.IndexField, error) {
	var mappings map[string]struct {
		Mappings map[string]interface{} `json:"mappings"`
	}
	if err := c.getJSON(ctx, proxyPath(datasourceID, index, "_mapping"), nil, &mappings); err != nil {
		return nil, err
	}

	byName := make(map[string]string)
	for _, m := range mappings {
		props, _ := m.Mappings["properties"].(map[string]interface{})
		if props == nil {
			// pre-7.x mappings are keyed by document type
			if doc, ok := m.Mappings["_doc"].(map[string]interface{}); ok {
				props, _ = doc["properties"].(map[string]interface{})
			}
		}
		flattenProperties("", props, byName)
	}

	fields := make([]models.IndexField, 0, len(byName))
	for name, typ := range byName {
		fields = append(fields, models.IndexField{Name: name, Type: typ})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

func flattenProperties(prefix string, props map[string]interface{}, out map[string]string) {
	for name, raw := range props {
		def, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		full := prefix + name
		if typ, ok := def["type"].(string); ok {
			out[full] = typ
		}
		if nested, ok := def["properties"].(map[string]interface{}); ok {
			flattenProperties(full+".", nested, out)
		}
	}
}

// Search fetches up to maxSearchHits documents matching filters and returns one row
// per hit with a value for each requested field, in field order.
func (c *Client) Search(ctx context.Context, datasourceID int, index string, fields []string, filters map[string]interface{}) ([][]interface{}, error) {
	body := map[string]interface{}{
		"query":   BuildSearchQuery(filters),
		"_source": fields,
		"size":    maxSearchHits,
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.postJSON(ctx, proxyPath(datasourceID, index, "_search"), body, &resp); err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		row := make([]interface{}, len(fields))
		for i, field := range fields {
			row[i] = sourceValue(hit.Source, field)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BuildSearchQuery turns a filter map into a bool query. An object with gte or lte
// becomes a range clause, a list a terms clause, anything else a match clause.
func BuildSearchQuery(filters map[string]interface{}) map[string]interface{} {
	if len(filters) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	must := make([]interface{}, 0, len(names))
	for _, name := range names {
		value := filters[name]
		kind := "match"
		switch v := value.(type) {
		case map[string]interface{}:
			_, gte := v["gte"]
			_, lte := v["lte"]
			if gte || lte {
				kind = "range"
			}
		case []interface{}:
			kind = "terms"
		}
		must = append(must, map[string]interface{}{kind: map[string]interface{}{name: value}})
	}
	return map[string]interface{}{"bool": map[string]interface{}{"must": must}}
}

// sourceValue resolves a dotted field in a hit; objects and lists are JSON encoded
func sourceValue(source map[string]interface{}, field string) interface{} {
	var value interface{} = source
	for _, part := range strings.Split(field, ".") {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value = obj[part]
	}

	switch value.(type) {
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}
	return value
}

func proxyPath(datasourceID int, parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return "/api/datasources/proxy/" + strconv.Itoa(datasourceID) + "/" + strings.Join(escaped, "/")
}

func (c *Client) searchable(typ string) bool {
	for _, t := range c.datasourceTypes {
		if t == typ {
			return true
		}
	}
	return false
}
