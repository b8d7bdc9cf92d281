// Package wizard implements the report wizard: step gating, dashboard and panel
// selection, persisted form state, templates and report generation.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"report_wizard/internal/kvstore"
	"report_wizard/internal/models"

	"github.com/sirupsen/logrus"
)

// Backend is the report API the wizard talks to.
type Backend interface {
	Dashboards(ctx context.Context) ([]models.Dashboard, error)
	Panels(ctx context.Context, dashboardUID string) ([]models.Panel, error)
	UploadLogo(ctx context.Context, logo LogoFile) (UploadedLogo, error)
	GenerateReport(ctx context.Context, req GenerateRequest) (*Report, error)
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Alert(message string)
}

// Downloader hands a generated report to the user and returns where it went.
type Downloader interface {
	Download(filename string, data []byte) (string, error)
}

// LogNotifier reports alerts through logrus, for non-interactive runs.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Alert(message string) {
	n.Logger.Warn(message)
}

// Config wires a Wizard to its collaborators.
type Config struct {
	Backend    Backend
	Store      kvstore.Store
	Notifier   Notifier
	Downloader Downloader
	Logger     *logrus.Logger
	// InitialStep seeds the current step when non-zero; it is clamped to 1..5.
	InitialStep int
	Now         func() time.Time
}

// Snapshot is a consistent copy of the wizard state for rendering.
type Snapshot struct {
	Form              FormData
	Dashboards        []models.Dashboard
	Panels            map[string][]models.Panel
	Templates         []Template
	LoadingDashboards bool
	LoadingPanels     map[string]bool
	Uploading         bool
	Generating        bool
}

// Wizard is the wizard controller. It is safe for concurrent use; backend calls
// are made without holding the lock.
type Wizard struct {
	backend    Backend
	store      kvstore.Store
	notifier   Notifier
	downloader Downloader
	logger     *logrus.Logger
	now        func() time.Time

	mu                sync.Mutex
	form              FormData
	templates         []Template
	dashboards        []models.Dashboard
	panels            map[string][]models.Panel
	loadingDashboards bool
	loadingPanels     map[string]bool
	generations       map[string]uint64
	nextGeneration    uint64
	uploading         bool
	generating        bool
}

// New restores persisted state and returns a ready wizard.
func New(cfg Config) (*Wizard, error) {
	if cfg.Backend == nil {
		return nil, errors.New("wizard: backend is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("wizard: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w := &Wizard{
		backend:       cfg.Backend,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		downloader:    cfg.Downloader,
		logger:        cfg.Logger,
		now:           cfg.Now,
		form:          DefaultFormData(),
		templates:     []Template{},
		panels:        make(map[string][]models.Panel),
		loadingPanels: make(map[string]bool),
		generations:   make(map[string]uint64),
	}

	if err := w.restore(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, uid := range w.form.Dashboards {
		w.bumpGenerationLocked(uid)
	}
	if cfg.InitialStep != 0 {
		step := ClampStep(cfg.InitialStep)
		w.form.CurrentStep = step
		w.form.HighestStep = max(w.form.HighestStep, step)
		w.persistLocked()
	}
	return w, nil
}

func (w *Wizard) restore() error {
	raw, ok, err := w.store.Get(StorageKeyData)
	if err != nil {
		return fmt.Errorf("read %s: %w", StorageKeyData, err)
	}
	if ok {
		form, err := Migrate(raw)
		if err != nil {
			w.logger.WithError(err).WithField("key", StorageKeyData).Warn("Discarding malformed saved form data")
			if err := w.store.Delete(StorageKeyData); err != nil {
				w.logger.WithError(err).Warn("Failed to clear saved form data")
			}
			form = DefaultFormData()
		}
		w.form = form
	}

	raw, ok, err = w.store.Get(StorageKeyTemplates)
	if err != nil {
		return fmt.Errorf("read %s: %w", StorageKeyTemplates, err)
	}
	if ok {
		templates, err := decodeTemplates(raw)
		if err != nil {
			w.logger.WithError(err).WithField("key", StorageKeyTemplates).Warn("Discarding malformed saved templates")
			if err := w.store.Delete(StorageKeyTemplates); err != nil {
				w.logger.WithError(err).Warn("Failed to clear saved templates")
			}
			templates = []Template{}
		}
		w.templates = templates
	}
	return nil
}

// persistLocked writes the whole form. Storage failures are logged, never surfaced.
func (w *Wizard) persistLocked() {
	data, err := json.Marshal(w.form)
	if err != nil {
		w.logger.WithError(err).Error("Failed to encode form data")
		return
	}
	if err := w.store.Set(StorageKeyData, data); err != nil {
		w.logger.WithError(err).Error("Failed to save form data")
	}
}

func (w *Wizard) persistTemplatesLocked() {
	data, err := json.Marshal(w.templates)
	if err != nil {
		w.logger.WithError(err).Error("Failed to encode templates")
		return
	}
	if err := w.store.Set(StorageKeyTemplates, data); err != nil {
		w.logger.WithError(err).Error("Failed to save templates")
	}
}

func (w *Wizard) alert(format string, args ...interface{}) {
	w.notifier.Alert(fmt.Sprintf(format, args...))
}

// Snapshot returns a copy of the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	panels := make(map[string][]models.Panel, len(w.panels))
	for uid, list := range w.panels {
		panels[uid] = slices.Clone(list)
	}
	loading := make(map[string]bool, len(w.loadingPanels))
	for uid, v := range w.loadingPanels {
		loading[uid] = v
	}
	return Snapshot{
		Form:              w.form.Clone(),
		Dashboards:        slices.Clone(w.dashboards),
		Panels:            panels,
		Templates:         cloneTemplates(w.templates),
		LoadingDashboards: w.loadingDashboards,
		LoadingPanels:     loading,
		Uploading:         w.uploading,
		Generating:        w.generating,
	}
}

// Form returns a copy of the persisted configuration.
func (w *Wizard) Form() FormData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form.Clone()
}

// Step navigation

// CurrentStep returns the step being shown.
func (w *Wizard) CurrentStep() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form.CurrentStep
}

// StepValid reports whether the given step's requirements are met.
func (w *Wizard) StepValid(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepValidLocked(step)
}

func (w *Wizard) stepValidLocked(step Step) bool {
	if step == StepSelect {
		return len(w.form.Dashboards) > 0 && w.form.SelectedPanels.Total() > 0
	}
	return true
}

// NextStep advances one step if the current step is complete. The last step is terminal.
func (w *Wizard) NextStep() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.form.CurrentStep >= LastStep {
		return nil
	}
	if !w.stepValidLocked(w.form.CurrentStep) {
		w.alert("Please %s before continuing", ErrStepIncomplete.Error())
		return ErrStepIncomplete
	}

	w.form.CurrentStep++
	w.form.HighestStep = max(w.form.HighestStep, w.form.CurrentStep)
	w.persistLocked()
	return nil
}

// PrevStep moves back one step, stopping at the first.
func (w *Wizard) PrevStep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.form.CurrentStep > FirstStep {
		w.form.CurrentStep--
		w.persistLocked()
	}
}

// GoToStep jumps to any step already reached. Otherwise the state is left unchanged.
func (w *Wizard) GoToStep(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n < int(FirstStep) || n > int(w.form.HighestStep) {
		return fmt.Errorf("%w: %d (highest %d)", ErrStepUnavailable, n, w.form.HighestStep)
	}
	w.form.CurrentStep = Step(n)
	w.persistLocked()
	return nil
}

// Dashboards and panels

// LoadDashboards fetches the dashboard list, replacing it on success.
func (w *Wizard) LoadDashboards(ctx context.Context) error {
	w.mu.Lock()
	w.loadingDashboards = true
	w.mu.Unlock()

	dashboards, err := w.backend.Dashboards(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadingDashboards = false

	if err != nil {
		w.logger.WithError(err).Error("Error loading dashboards")
		w.alert("Failed to load dashboards: %v", err)
		return err
	}
	w.dashboards = dashboards
	return nil
}

// Dashboard returns the loaded dashboard with the given UID.
func (w *Wizard) Dashboard(uid string) (models.Dashboard, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, d := range w.dashboards {
		if d.UID == uid {
			return d, true
		}
	}
	return models.Dashboard{}, false
}

// ToggleDashboard selects or deselects a dashboard and reports whether it is now selected.
// Callers load panels for a newly selected dashboard with LoadPanels.
func (w *Wizard) ToggleDashboard(uid string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.form.HasDashboard(uid) {
		w.deselectLocked(uid)
		return false
	}
	w.selectLocked(uid)
	return true
}

// SelectDashboard adds a dashboard with an empty selection. It reports false if it was already selected.
func (w *Wizard) SelectDashboard(uid string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if uid == "" || w.form.HasDashboard(uid) {
		return false
	}
	w.selectLocked(uid)
	return true
}

// DeselectDashboard drops the dashboard, its panel selection and its cached panels.
func (w *Wizard) DeselectDashboard(uid string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.form.HasDashboard(uid) {
		w.deselectLocked(uid)
	}
}

func (w *Wizard) selectLocked(uid string) {
	w.form.Dashboards = append(w.form.Dashboards, uid)
	w.form.SelectedPanels[uid] = []int{}
	w.bumpGenerationLocked(uid)
	w.persistLocked()
}

func (w *Wizard) deselectLocked(uid string) {
	w.form.Dashboards = slices.DeleteFunc(w.form.Dashboards, func(s string) bool { return s == uid })
	delete(w.form.SelectedPanels, uid)
	delete(w.panels, uid)
	delete(w.loadingPanels, uid)
	delete(w.generations, uid)
	w.persistLocked()
}

func (w *Wizard) bumpGenerationLocked(uid string) {
	w.nextGeneration++
	w.generations[uid] = w.nextGeneration
}

// LoadPanels fetches the panels of a selected dashboard. Loads for different dashboards
// are independent. A result that arrives after the dashboard was deselected (or
// deselected and selected again) is discarded.
func (w *Wizard) LoadPanels(ctx context.Context, uid string) error {
	w.mu.Lock()
	generation, ok := w.generations[uid]
	if !ok || !w.form.HasDashboard(uid) {
		w.mu.Unlock()
		return nil
	}
	w.loadingPanels[uid] = true
	w.mu.Unlock()

	panels, err := w.backend.Panels(ctx, uid)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.generations[uid] != generation || !w.form.HasDashboard(uid) {
		w.logger.WithField("dashboard_uid", uid).Debug("Discarding stale panel load")
		return nil
	}
	w.loadingPanels[uid] = false

	if err != nil {
		w.logger.WithError(err).WithField("dashboard_uid", uid).Error("Error loading panels")
		w.panels[uid] = []models.Panel{}
		w.alert("Failed to load panels: %v", err)
		return err
	}
	if panels == nil {
		panels = []models.Panel{}
	}
	w.panels[uid] = panels
	return nil
}

// Panels returns the cached panels of a dashboard.
func (w *Wizard) Panels(uid string) []models.Panel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.panels[uid])
}

// TogglePanel flips one panel of a selected dashboard and reports whether it is now selected.
// Panels of unselected dashboards are ignored.
func (w *Wizard) TogglePanel(uid string, id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.form.HasDashboard(uid) {
		return false
	}
	selected := w.form.SelectedPanels.Toggle(uid, id)
	w.persistLocked()
	return selected
}

// SelectAllPanels selects every cached panel of a selected dashboard.
func (w *Wizard) SelectAllPanels(uid string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.form.HasDashboard(uid) {
		return
	}
	ids := make([]int, 0, len(w.panels[uid]))
	for _, p := range w.panels[uid] {
		ids = append(ids, p.ID)
	}
	w.form.SelectedPanels[uid] = ids
	w.persistLocked()
}

// ClearPanels empties the selection of a selected dashboard.
func (w *Wizard) ClearPanels(uid string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.form.HasDashboard(uid) {
		return
	}
	w.form.SelectedPanels[uid] = []int{}
	w.persistLocked()
}

// Report details

func (w *Wizard) SetTitle(title string) {
	w.update(func(f *FormData) { f.ReportTitle = title })
}

func (w *Wizard) SetSubtitle(subtitle string) {
	w.update(func(f *FormData) { f.ReportSubtitle = subtitle })
}

func (w *Wizard) SetCompanyName(name string) {
	w.update(func(f *FormData) { f.CompanyName = name })
}

// SetQuickRange selects one of QuickRanges.
func (w *Wizard) SetQuickRange(quick string) error {
	tr := TimeRange{Quick: quick}
	if !tr.IsQuick() {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidTimeRange, quick)
	}
	w.update(func(f *FormData) { f.TimeRange = tr })
	return nil
}

// SetCustomRange sets an explicit range; both ends are passed to Grafana verbatim.
func (w *Wizard) SetCustomRange(from, to string) error {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return fmt.Errorf("%w: both from and to are required", ErrInvalidTimeRange)
	}
	w.update(func(f *FormData) { f.TimeRange = TimeRange{From: from, To: to} })
	return nil
}

// ClearLogo forgets the uploaded logo.
func (w *Wizard) ClearLogo() {
	w.update(func(f *FormData) { f.LogoPath = "" })
}

func (w *Wizard) update(fn func(*FormData)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.form)
	w.persistLocked()
}

// ValidateLogo checks type and size before anything is sent.
func ValidateLogo(logo LogoFile) error {
	if !slices.Contains(LogoContentTypes, strings.ToLower(logo.ContentType)) {
		return fmt.Errorf("%w: please upload a valid image file (PNG, JPEG, or SVG), got %q", ErrInvalidLogo, logo.ContentType)
	}
	if len(logo.Data) > MaxLogoSize {
		return fmt.Errorf("%w: file size exceeds 10MB limit", ErrInvalidLogo)
	}
	return nil
}

// UploadLogo validates and uploads a logo and remembers its path.
func (w *Wizard) UploadLogo(ctx context.Context, logo LogoFile) error {
	if err := ValidateLogo(logo); err != nil {
		w.alert("%v", err)
		return err
	}

	w.mu.Lock()
	w.uploading = true
	w.mu.Unlock()

	uploaded, err := w.backend.UploadLogo(ctx, logo)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploading = false

	if err != nil {
		w.logger.WithError(err).Error("Error uploading logo")
		w.alert("Failed to upload logo: %v", err)
		return err
	}
	w.form.LogoPath = uploaded.Path
	w.persistLocked()
	return nil
}

// Generation

// CanGenerate reports whether a report can be requested.
func (w *Wizard) CanGenerate() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canGenerateLocked()
}

func (w *Wizard) canGenerateLocked() bool {
	return len(w.form.ActiveDashboards()) > 0 && strings.TrimSpace(w.form.ReportTitle) != ""
}

// BuildRequest assembles the generation payload from the current form.
func (w *Wizard) BuildRequest() GenerateRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return buildRequest(w.form)
}

func buildRequest(form FormData) GenerateRequest {
	req := GenerateRequest{
		Dashboards:  []DashboardPanels{},
		TimeRange:   form.TimeRange.Resolve(),
		Title:       strings.TrimSpace(form.ReportTitle),
		CompanyName: strings.TrimSpace(form.CompanyName),
		LogoPath:    form.LogoPath,
	}
	for _, uid := range form.ActiveDashboards() {
		ids := slices.Clone(form.SelectedPanels[uid])
		req.Dashboards = append(req.Dashboards, DashboardPanels{UID: uid, Panels: ids})
		if req.DashboardUID == "" {
			req.DashboardUID = uid
			req.PanelIDs = ids
		}
	}
	return req
}

// Generate requests the report, hands it to the downloader and records it in history.
// It returns where the file was saved. On failure the form is left unchanged.
func (w *Wizard) Generate(ctx context.Context) (string, error) {
	w.mu.Lock()
	if !w.canGenerateLocked() {
		w.mu.Unlock()
		w.alert("Please %s", ErrNotReady.Error())
		return "", ErrNotReady
	}
	if w.generating {
		w.mu.Unlock()
		return "", ErrBusy
	}
	w.generating = true
	req := buildRequest(w.form)
	w.mu.Unlock()

	logger := w.logger.WithFields(logrus.Fields{
		"title":      req.Title,
		"dashboards": len(req.Dashboards),
	})

	saved, filename, err := w.generate(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.generating = false

	if err != nil {
		logger.WithError(err).Error("Error generating report")
		w.alert("Failed to generate report: %v", err)
		return "", err
	}

	panelCount := 0
	for _, d := range req.Dashboards {
		panelCount += len(d.Panels)
	}
	entry := HistoryEntry{
		Title:          req.Title,
		Format:         ReportFormat,
		Filename:       filename,
		Timestamp:      w.now(),
		DashboardCount: len(req.Dashboards),
		PanelCount:     panelCount,
	}
	w.form.ReportHistory = append([]HistoryEntry{entry}, w.form.ReportHistory...)
	if len(w.form.ReportHistory) > MaxHistory {
		w.form.ReportHistory = w.form.ReportHistory[:MaxHistory]
	}
	w.persistLocked()

	logger.WithField("saved_to", saved).Info("Report generated")
	return saved, nil
}

func (w *Wizard) generate(ctx context.Context, req GenerateRequest) (string, string, error) {
	report, err := w.backend.GenerateReport(ctx, req)
	if err != nil {
		return "", "", err
	}
	filename := report.Filename
	if filename == "" {
		filename = DefaultDownloadName
	}
	if w.downloader == nil {
		return "", "", errors.New("no download target configured")
	}
	saved, err := w.downloader.Download(filename, report.Data)
	if err != nil {
		return "", "", fmt.Errorf("save report: %w", err)
	}
	return saved, filename, nil
}

// Reset restores a fresh form. Templates are kept.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.form = DefaultFormData()
	w.panels = make(map[string][]models.Panel)
	w.loadingPanels = make(map[string]bool)
	w.generations = make(map[string]uint64)
	w.persistLocked()
}
