package wizard

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// templateFile is the YAML document used for export and import.
type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// Templates returns the saved templates, oldest first.
func (w *Wizard) Templates() []Template {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneTemplates(w.templates)
}

// SaveTemplate snapshots the current dashboards, panels and time range under name.
func (w *Wizard) SaveTemplate(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.templates = append(w.templates, Template{
		Name:       name,
		Dashboards: slices.Clone(w.form.Dashboards),
		Panels:     w.form.SelectedPanels.Clone(),
		TimeRange:  w.form.TimeRange,
		CreatedAt:  w.now(),
	})
	w.persistTemplatesLocked()
	return nil
}

// ApplyTemplate replaces the selection and time range with template i.
// It returns the dashboards whose panels need loading.
func (w *Wizard) ApplyTemplate(i int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i < 0 || i >= len(w.templates) {
		return nil, fmt.Errorf("%w: no template at index %d", ErrInvalidTemplate, i)
	}
	t := w.templates[i]

	dashboards := dedupe(t.Dashboards)
	selection := Selection{}
	for _, uid := range dashboards {
		selection[uid] = slices.Clone(t.Panels[uid])
		if selection[uid] == nil {
			selection[uid] = []int{}
		}
	}

	for uid := range w.panels {
		if !slices.Contains(dashboards, uid) {
			delete(w.panels, uid)
		}
	}
	w.loadingPanels = make(map[string]bool)
	w.generations = make(map[string]uint64)
	for _, uid := range dashboards {
		w.bumpGenerationLocked(uid)
	}

	w.form.Dashboards = dashboards
	w.form.SelectedPanels = selection
	if t.TimeRange.Valid() {
		w.form.TimeRange = t.TimeRange
	}
	w.persistLocked()

	return slices.Clone(dashboards), nil
}

// DeleteTemplate removes template i.
func (w *Wizard) DeleteTemplate(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i < 0 || i >= len(w.templates) {
		return fmt.Errorf("%w: no template at index %d", ErrInvalidTemplate, i)
	}
	w.templates = slices.Delete(w.templates, i, i+1)
	w.persistTemplatesLocked()
	return nil
}

// ExportTemplates writes all templates as a YAML document.
func (w *Wizard) ExportTemplates(out io.Writer) error {
	doc := templateFile{Templates: w.Templates()}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	return enc.Close()
}

// ImportTemplates appends the templates of a YAML document and returns how many were added.
// Entries without a name are skipped.
func (w *Wizard) ImportTemplates(in io.Reader) (int, error) {
	var doc templateFile
	if err := yaml.NewDecoder(in).Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("decode templates: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, t := range doc.Templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			w.logger.Warn("Skipping imported template without a name")
			continue
		}
		t.Dashboards = dedupe(t.Dashboards)
		if t.Panels == nil {
			t.Panels = Selection{}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = w.now()
		}
		w.templates = append(w.templates, t)
		added++
	}
	if added > 0 {
		w.persistTemplatesLocked()
	}
	return added, nil
}

func cloneTemplates(in []Template) []Template {
	out := make([]Template, len(in))
	for i, t := range in {
		t.Dashboards = slices.Clone(t.Dashboards)
		t.Panels = t.Panels.Clone()
		out[i] = t
	}
	return out
}
