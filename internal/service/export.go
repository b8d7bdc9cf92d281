package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"report_wizard/internal/models"
	"report_wizard/internal/storage"

	"github.com/sirupsen/logrus"
)

// FormatXLSX is the only export format produced
const FormatXLSX = "xlsx"

// IndexSource searches Elasticsearch and OpenSearch datasources through Grafana
type IndexSource interface {
	Datasources(ctx context.Context) ([]models.Datasource, error)
	Indices(ctx context.Context, datasourceID int) ([]string, error)
	Fields(ctx context.Context, datasourceID int, index string) ([]models.IndexField, error)
	Search(ctx context.Context, datasourceID int, index string, fields []string, filters map[string]interface{}) ([][]interface{}, error)
}

// TableGenerator renders a flat document export
type TableGenerator interface {
	GenerateTable(ctx context.Context, doc TableDocument) (*bytes.Buffer, error)
}

// ExportRequest selects documents of one index for a single-sheet report
type ExportRequest struct {
	DatasourceID int
	Index        string
	Fields       []string
	Filters      map[string]interface{}
	Format       string
	Title        string
	LogoPath     string
}

// ExportService builds reports straight from index documents
type ExportService struct {
	source     IndexSource
	repository ReportRepository
	generator  TableGenerator
	files      storage.Storage
	logos      *LogoService
	logger     *logrus.Logger
	now        func() time.Time
}

// NewExportService создает сервис выгрузки документов
func NewExportService(
	source IndexSource,
	repository ReportRepository,
	generator TableGenerator,
	files storage.Storage,
	logos *LogoService,
	logger *logrus.Logger,
) *ExportService {
	return &ExportService{
		source:     source,
		repository: repository,
		generator:  generator,
		files:      files,
		logos:      logos,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *ExportService) Datasources(ctx context.Context) ([]models.Datasource, error) {
	return s.source.Datasources(ctx)
}

func (s *ExportService) Indices(ctx context.Context, datasourceID int) ([]string, error) {
	return s.source.Indices(ctx, datasourceID)
}

func (s *ExportService) Fields(ctx context.Context, datasourceID int, index string) ([]models.IndexField, error) {
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("%w: index is required", ErrInvalidRequest)
	}
	return s.source.Fields(ctx, datasourceID, index)
}

// Export searches the index, renders the hits and archives the workbook
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*GeneratedFile, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX {
		return nil, fmt.Errorf("%w: unsupported report format %q, only %s is available", ErrInvalidRequest, req.Format, FormatXLSX)
	}
	index := strings.TrimSpace(req.Index)
	if index == "" {
		return nil, fmt.Errorf("%w: index is required", ErrInvalidRequest)
	}
	fields := uniqueFields(req.Fields)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidRequest)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultReportTitle
	}

	logger := s.logger.WithFields(logrus.Fields{
		"title":         title,
		"datasource_id": req.DatasourceID,
		"index":         index,
	})

	rows, err := s.source.Search(ctx, req.DatasourceID, index, fields, req.Filters)
	if err != nil {
		logger.WithError(err).Error("Failed to search index")
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	now := s.now()
	doc := TableDocument{
		Title:       title,
		GeneratedAt: now,
		Fields:      fields,
		Rows:        rows,
	}
	if req.LogoPath != "" && s.logos != nil {
		logo, err := s.logos.Load(ctx, req.LogoPath)
		if err != nil {
			logger.WithError(err).WithField("logo_path", req.LogoPath).Warn("Logo skipped")
		} else {
			doc.Logo = logo
		}
	}

	buf, err := s.generator.GenerateTable(ctx, doc)
	if err != nil {
		logger.WithError(err).Error("Failed to render export")
		return nil, fmt.Errorf("render export: %w", err)
	}

	file := &GeneratedFile{
		Filename:    ReportFilename(title, now),
		ContentType: XLSXContentType,
		Data:        buf.Bytes(),
	}
	record := &models.GeneratedReport{
		Title:    title,
		Status:   models.StatusCompleted,
		Filename: file.Filename,
		Parameters: models.JSON{
			"datasource_id": req.DatasourceID,
			"index":         index,
			"fields":        fields,
			"filters":       req.Filters,
			"rows":          len(rows),
		},
	}
	archiveReport(ctx, s.files, s.repository, file, record, now, logger)

	logger.WithFields(logrus.Fields{
		"filename": file.Filename,
		"rows":     len(rows),
	}).Info("Export generated")
	return file, nil
}

// uniqueFields trims names and drops blanks and repeats; table headers must be unique
func uniqueFields(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
