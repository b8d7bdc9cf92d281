package models

import "errors"

// ErrUnsupportedDatasource is returned for datasources that cannot be searched by index
var ErrUnsupportedDatasource = errors.New("unsupported datasource type")

// Datasource is a searchable (Elasticsearch or OpenSearch) Grafana datasource.
type Datasource struct {
	ID   int    `json:"id"`
	UID  string `json:"uid"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// IndexField is a leaf of an index mapping; nested objects are flattened into dotted names.
type IndexField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Dashboard is a Grafana dashboard as listed by the search API. Identity is UID.
type Dashboard struct {
	UID    string   `json:"uid"`
	Title  string   `json:"title"`
	URL    string   `json:"url,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Folder string   `json:"folder,omitempty"`
}

// PanelDatasource identifies the datasource a panel queries.
type PanelDatasource struct {
	UID  string `json:"uid"`
	Type string `json:"type"`
}

// Panel is a single visualization within a dashboard. ID is unique within its dashboard.
type Panel struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Type        string           `json:"type"`
	Description string           `json:"description,omitempty"`
	Datasource  *PanelDatasource `json:"datasource,omitempty"`
}

// TimeRange is a Grafana time range; values are either relative ("now-24h") or absolute.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PanelInfo describes the panel a PanelData was produced from.
type PanelInfo struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// PanelData is a panel's query result normalised into a table.
type PanelData struct {
	Fields  []string        `json:"fields"`
	Rows    [][]interface{} `json:"rows"`
	Summary string          `json:"summary,omitempty"`
	Panel   PanelInfo       `json:"panel"`
}

// Failed reports whether the data is a placeholder for a panel that could not be fetched.
func (d PanelData) Failed() bool {
	return d.Panel.Error != ""
}

// ErrorPanelData builds the single-cell table used in place of a panel that failed.
func ErrorPanelData(id int, title, panelType, message string) PanelData {
	if title == "" {
		title = "Unknown Panel"
	}
	if panelType == "" {
		panelType = "unknown"
	}
	return PanelData{
		Fields: []string{"Error"},
		Rows:   [][]interface{}{{message}},
		Panel: PanelInfo{
			ID:    id,
			Title: title,
			Type:  panelType,
			Error: message,
		},
	}
}
