package grafana

import (
	"fmt"
	"strings"

	"report_wizard/internal/models"
)

// extractPanels flattens a dashboard's panel list. Row panels are containers:
// their own entry is dropped and their collapsed children are kept.
func extractPanels(dash map[string]interface{}) []map[string]interface{} {
	var panels []map[string]interface{}
	for _, p := range objects(dash["panels"]) {
		if p["type"] == "row" {
			panels = append(panels, objects(p["panels"])...)
			continue
		}
		panels = append(panels, p)
	}
	return panels
}

// panelDatasource reads the datasource from the first target, falling back to the panel level.
func panelDatasource(panel map[string]interface{}) models.PanelDatasource {
	if targets := objects(panel["targets"]); len(targets) > 0 {
		if ds, ok := targets[0]["datasource"].(map[string]interface{}); ok {
			return models.PanelDatasource{UID: stringOr(ds["uid"], ""), Type: stringOr(ds["type"], "")}
		}
	}

	switch ds := panel["datasource"].(type) {
	case map[string]interface{}:
		return models.PanelDatasource{UID: stringOr(ds["uid"], ""), Type: stringOr(ds["type"], "")}
	case string:
		return models.PanelDatasource{Type: ds}
	}
	return models.PanelDatasource{}
}

type templateVar struct {
	name  string
	value string
}

// templateVars returns the current value of every dashboard variable, with "All"
// expanded to a wildcard and multi-values joined as a lucene OR.
func templateVars(dash map[string]interface{}) []templateVar {
	templating, _ := dash["templating"].(map[string]interface{})

	var vars []templateVar
	for _, v := range objects(templating["list"]) {
		name := stringOr(v["name"], "")
		if name == "" {
			continue
		}

		value := "*"
		if current, ok := v["current"].(map[string]interface{}); ok {
			switch cv := current["value"].(type) {
			case string:
				value = cv
			case []interface{}:
				parts := make([]string, 0, len(cv))
				for _, item := range cv {
					parts = append(parts, fmt.Sprint(item))
				}
				if len(parts) > 0 {
					value = strings.Join(parts, " OR ")
				}
			}
		}
		if value == "$__all" {
			value = "*"
		}
		vars = append(vars, templateVar{name: name, value: value})
	}
	return vars
}

// resolveTemplateVars substitutes ${var} and ${var:lucene} placeholders in a query string.
func resolveTemplateVars(vars []templateVar, query string) string {
	out := query
	for _, v := range vars {
		out = strings.ReplaceAll(out, "${"+v.name+":lucene}", v.value)
		out = strings.ReplaceAll(out, "${"+v.name+"}", v.value)
	}
	out = strings.ReplaceAll(out, "$__all", "*")

	// ad-hoc filters only exist inside Grafana
	out = strings.ReplaceAll(out, "${Filters:lucene}", "")
	out = strings.ReplaceAll(out, "${Filters}", "")
	return out
}

func objects(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
