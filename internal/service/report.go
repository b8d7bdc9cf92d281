package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"report_wizard/internal/models"
	"report_wizard/internal/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// XLSXContentType is the MIME type of generated reports
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultFetchConcurrency = 4
	defaultReportTitle      = "Security Report"
	maxPageSize             = 100
)

var (
	// ErrInvalidRequest marks input the client must fix
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoPanelData means none of the requested panels produced any data
	ErrNoPanelData = errors.New("failed to fetch data for any of the selected panels")
	// ErrReportNotFound is returned for unknown report ids
	ErrReportNotFound = errors.New("report not found")
)

// PanelSource provides dashboard metadata and panel data (Grafana)
type PanelSource interface {
	Dashboards(ctx context.Context) ([]models.Dashboard, error)
	DashboardPanels(ctx context.Context, uid string) ([]models.Panel, error)
	PanelData(ctx context.Context, dashboardUID string, panelID int, tr models.TimeRange) (models.PanelData, error)
}

// ReportRepository stores generated report records
type ReportRepository interface {
	Create(ctx context.Context, report *models.GeneratedReport) error
	GetByID(ctx context.Context, id uint) (*models.GeneratedReport, error)
	List(ctx context.Context, params ListReportParams) ([]models.GeneratedReport, int64, error)
	Delete(ctx context.Context, id uint) error
}

// ReportGenerator renders panel data into a spreadsheet
type ReportGenerator interface {
	Generate(ctx context.Context, doc ReportDocument) (*bytes.Buffer, error)
}

// ReportService generates reports from Grafana panels and keeps their history
type ReportService interface {
	GenerateFromPanels(ctx context.Context, req GenerateRequest) (*GeneratedFile, error)
	ListReports(ctx context.Context, params ListReportParams) (*ReportList, error)
	GetReportFile(ctx context.Context, id uint) (io.ReadCloser, string, error)
	DeleteReport(ctx context.Context, id uint) error
}

// PanelIDs accepts panel ids encoded either as JSON numbers or numeric strings
type PanelIDs []int

// UnmarshalJSON implements json.Unmarshaler
func (p *PanelIDs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ids := make([]int, 0, len(raw))
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			ids = append(ids, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("panel id %s is not a number", string(item))
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("panel id %q is not a number", s)
		}
		ids = append(ids, n)
	}
	*p = ids
	return nil
}

// DashboardSelection is one dashboard and the panels selected from it
type DashboardSelection struct {
	UID    string   `json:"uid"`
	Panels PanelIDs `json:"panels"`
}

// GenerateRequest describes a report to build
type GenerateRequest struct {
	Dashboards  []DashboardSelection
	TimeRange   models.TimeRange
	Title       string
	CompanyName string
	LogoPath    string
}

// GeneratedFile is a rendered report ready to be sent to the client
type GeneratedFile struct {
	ReportID    uint
	Filename    string
	ContentType string
	Data        []byte
}

// ReportDocument is everything the generator needs to render a workbook
type ReportDocument struct {
	Title       string
	CompanyName string
	TimeRange   models.TimeRange
	GeneratedAt time.Time
	Logo        *LogoImage
	Panels      []models.PanelData
}

// ListReportParams параметры для получения списка отчетов
type ListReportParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search,omitempty"`
}

// ReportList результат получения списка отчетов с пагинацией
type ReportList struct {
	Reports    []models.GeneratedReport `json:"reports"`
	Total      int64                    `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

// ReportServiceImpl реализация сервиса отчетов
type ReportServiceImpl struct {
	source      PanelSource
	repository  ReportRepository
	generator   ReportGenerator
	files       storage.Storage
	logos       *LogoService
	logger      *logrus.Logger
	concurrency int
	now         func() time.Time
}

// NewReportService создает новый сервис отчетов
func NewReportService(
	source PanelSource,
	repository ReportRepository,
	generator ReportGenerator,
	files storage.Storage,
	logos *LogoService,
	logger *logrus.Logger,
	concurrency int,
) *ReportServiceImpl {
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	return &ReportServiceImpl{
		source:      source,
		repository:  repository,
		generator:   generator,
		files:       files,
		logos:       logos,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// GenerateFromPanels fetches every selected panel, renders the workbook, stores it and records it
func (s *ReportServiceImpl) GenerateFromPanels(ctx context.Context, req GenerateRequest) (*GeneratedFile, error) {
	if req.TimeRange.From == "" || req.TimeRange.To == "" {
		return nil, fmt.Errorf("%w: time_range must have 'from' and 'to' fields", ErrInvalidRequest)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultReportTitle
	}

	logger := s.logger.WithFields(logrus.Fields{
		"title":      title,
		"dashboards": len(req.Dashboards),
	})

	panels, dashboards := s.fetchPanels(ctx, req)
	if len(panels) == 0 {
		logger.Warn("No panels to render")
		return nil, ErrNoPanelData
	}

	failed := 0
	for _, p := range panels {
		if p.Failed() {
			failed++
		}
	}

	now := s.now()
	doc := ReportDocument{
		Title:       title,
		CompanyName: strings.TrimSpace(req.CompanyName),
		TimeRange:   req.TimeRange,
		GeneratedAt: now,
		Panels:      panels,
	}
	if req.LogoPath != "" && s.logos != nil {
		logo, err := s.logos.Load(ctx, req.LogoPath)
		if err != nil {
			logger.WithError(err).WithField("logo_path", req.LogoPath).Warn("Logo skipped")
		} else {
			doc.Logo = logo
		}
	}

	buf, err := s.generator.Generate(ctx, doc)
	if err != nil {
		logger.WithError(err).Error("Failed to render report")
		return nil, fmt.Errorf("render report: %w", err)
	}

	file := &GeneratedFile{
		Filename:    ReportFilename(title, now),
		ContentType: XLSXContentType,
		Data:        buf.Bytes(),
	}

	// The file is returned even when archiving fails; history is best effort
	record := &models.GeneratedReport{
		Title:          title,
		CompanyName:    doc.CompanyName,
		Status:         models.StatusCompleted,
		Filename:       file.Filename,
		TimeFrom:       req.TimeRange.From,
		TimeTo:         req.TimeRange.To,
		DashboardCount: dashboards,
		PanelCount:     len(panels),
		FailedPanels:   failed,
		Parameters:     models.JSON{"dashboards": selectionParams(req.Dashboards)},
	}
	archiveReport(ctx, s.files, s.repository, file, record, now, logger)

	logger.WithFields(logrus.Fields{
		"filename":      file.Filename,
		"panels":        len(panels),
		"failed_panels": failed,
	}).Info("Report generated")
	return file, nil
}

// fetchPanels queries all selected panels with bounded concurrency, preserving selection order.
// A panel that fails becomes an error sheet instead of failing the report.
func (s *ReportServiceImpl) fetchPanels(ctx context.Context, req GenerateRequest) ([]models.PanelData, int) {
	type job struct {
		uid string
		id  int
	}

	var jobs []job
	dashboards := 0
	for _, d := range req.Dashboards {
		if d.UID == "" || len(d.Panels) == 0 {
			continue
		}
		dashboards++
		for _, id := range d.Panels {
			jobs = append(jobs, job{uid: d.UID, id: id})
		}
	}

	results := make([]models.PanelData, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			data, err := s.source.PanelData(gctx, j.uid, j.id, req.TimeRange)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"dashboard_uid": j.uid,
					"panel_id":      j.id,
				}).Error("Error fetching panel")
				data = models.ErrorPanelData(j.id, fmt.Sprintf("Panel %d (Error)", j.id), "unknown",
					"Failed to fetch data: "+err.Error())
				data.Panel.Description = "Error fetching panel data"
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()

	return results, dashboards
}

// ListReports получает список отчетов с пагинацией
func (s *ReportServiceImpl) ListReports(ctx context.Context, params ListReportParams) (*ReportList, error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	reports, total, err := s.repository.List(ctx, params)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения списка отчетов")
		return nil, fmt.Errorf("ошибка получения списка отчетов: %w", err)
	}

	return &ReportList{
		Reports:    reports,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int((total + int64(params.PageSize) - 1) / int64(params.PageSize)),
	}, nil
}

// GetReportFile возвращает архивный файл отчета
func (s *ReportServiceImpl) GetReportFile(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	report, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: id %d", ErrReportNotFound, id)
		}
		return nil, "", fmt.Errorf("ошибка получения отчета: %w", err)
	}

	if !report.IsCompleted() || !report.HasFile() {
		return nil, "", fmt.Errorf("%w: file for report %d is not available", ErrReportNotFound, id)
	}

	reader, err := s.files.Get(ctx, report.FileKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %v", ErrReportNotFound, err)
		}
		return nil, "", fmt.Errorf("ошибка получения файла: %w", err)
	}
	return reader, report.Filename, nil
}

// DeleteReport удаляет отчет и его файл
func (s *ReportServiceImpl) DeleteReport(ctx context.Context, id uint) error {
	report, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrReportNotFound, id)
		}
		return fmt.Errorf("ошибка получения отчета: %w", err)
	}

	if report.HasFile() {
		if err := s.files.Delete(ctx, report.FileKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).WithField("file_key", report.FileKey).Warn("Ошибка удаления файла отчета")
		}
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		return fmt.Errorf("ошибка удаления отчета: %w", err)
	}

	s.logger.WithField("report_id", id).Info("Отчет удален")
	return nil
}

// archiveReport stores the rendered file and its history record; failures are only logged
func archiveReport(ctx context.Context, files storage.Storage, repository ReportRepository,
	file *GeneratedFile, record *models.GeneratedReport, at time.Time, logger *logrus.Entry) {
	key := storage.ReportKey(file.Filename, at)
	if err := files.Save(ctx, key, bytes.NewReader(file.Data)); err != nil {
		logger.WithError(err).Warn("Failed to archive report file")
	} else {
		record.FileKey = key
	}
	if err := repository.Create(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to record generated report")
	} else {
		file.ReportID = record.ID
	}
}

// ReportFilename builds "<title>_<YYYYMMDD_HHMMSS>.xlsx" with spaces and path separators replaced
func ReportFilename(title string, at time.Time) string {
	name := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(title)
	return fmt.Sprintf("%s_%s.xlsx", name, at.Format("20060102_150405"))
}

func selectionParams(selections []DashboardSelection) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(selections))
	for _, d := range selections {
		out = append(out, map[string]interface{}{"uid": d.UID, "panels": []int(d.Panels)})
	}
	return out
}

// GormReportRepository реализация репозитория отчетов для GORM
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository создает новый GORM репозиторий отчетов
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// Create создает новую запись в БД
func (r *GormReportRepository) Create(ctx context.Context, report *models.GeneratedReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// GetByID получает отчет по ID
func (r *GormReportRepository) GetByID(ctx context.Context, id uint) (*models.GeneratedReport, error) {
	var report models.GeneratedReport
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// Delete удаляет отчет (soft delete)
func (r *GormReportRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.GeneratedReport{}, id).Error
}

// List получает список отчетов, новые первыми
func (r *GormReportRepository) List(ctx context.Context, params ListReportParams) ([]models.GeneratedReport, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.GeneratedReport{})

	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(company_name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []models.GeneratedReport
	err := query.Order("created_at DESC").Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&reports).Error

	return reports, total, err
}
