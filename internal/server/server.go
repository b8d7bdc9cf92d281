package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"report_wizard/internal/config"
	"report_wizard/internal/models"
	"report_wizard/internal/service"
	"report_wizard/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// multipart overhead allowed on top of the upload limit
const formOverhead = 1024 * 1024

// Server represents the HTTP server
type Server struct {
	echo         *echo.Echo
	reports      service.ReportService
	logos        *service.LogoService
	source       service.PanelSource
	exports      *service.ExportService
	logger       *logrus.Logger
	defaultTitle string
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	reports service.ReportService,
	logos *service.LogoService,
	source service.PanelSource,
	exports *service.ExportService,
	logger *logrus.Logger,
) *Server {
	e := echo.New()
	e.Debug = cfg.Server.Debug
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("Request failed")
				return nil
			}
			entry.Debug("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", (cfg.Upload.MaxSize+formOverhead)/1024)))

	title := cfg.Report.DefaultTitle
	if title == "" {
		title = "Security Report"
	}

	server := &Server{
		echo:         e,
		reports:      reports,
		logos:        logos,
		source:       source,
		exports:      exports,
		logger:       logger,
		defaultTitle: title,
	}

	server.setupRoutes()
	return server
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.WithField("address", address).Info("Starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or exercised with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	reports := s.echo.Group("/reports")
	{
		reports.GET("/dashboards", s.listDashboards)
		reports.GET("/panels", s.listPanels)
		reports.GET("/panel-data", s.panelData)
		reports.POST("/upload-logo", s.uploadLogo)
		reports.POST("/generate-from-panels", s.generateFromPanels)
		reports.GET("/history", s.listHistory)
		reports.GET("/history/:id/download", s.downloadReport)
		reports.DELETE("/history/:id", s.deleteReport)

		reports.GET("/datasources", s.listDatasources)
		reports.GET("/indices", s.listIndices)
		reports.GET("/fields", s.listFields)
		reports.POST("/generate", s.generateExport)
	}

	s.echo.GET("/static/uploads/:filename", s.serveUpload)
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "report-wizard",
	})
}

func (s *Server) listDashboards(c echo.Context) error {
	dashboards, err := s.source.Dashboards(c.Request().Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list dashboards")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dashboards": dashboards})
}

func (s *Server) listPanels(c echo.Context) error {
	uid := c.QueryParam("dashboard_uid")
	if uid == "" {
		return errorJSON(c, http.StatusBadRequest, "dashboard_uid is required")
	}

	panels, err := s.source.DashboardPanels(c.Request().Context(), uid)
	if err != nil {
		s.logger.WithError(err).WithField("dashboard_uid", uid).Error("Failed to list panels")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"panels": panels})
}

func (s *Server) panelData(c echo.Context) error {
	uid := c.QueryParam("dashboard_uid")
	if uid == "" {
		return errorJSON(c, http.StatusBadRequest, "dashboard_uid is required")
	}
	panelID, err := strconv.Atoi(c.QueryParam("panel_id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid panel_id")
	}

	tr := models.TimeRange{
		From: queryOr(c, "from_time", "now-24h"),
		To:   queryOr(c, "to_time", "now"),
	}

	data, err := s.source.PanelData(c.Request().Context(), uid, panelID, tr)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"dashboard_uid": uid,
			"panel_id":      panelID,
		}).Error("Failed to get panel data")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"panel_info": data.Panel,
		"fields":     data.Fields,
		"rows":       data.Rows,
		"row_count":  len(data.Rows),
		"summary":    data.Summary,
		"time_range": tr,
	})
}

func (s *Server) uploadLogo(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "No file provided")
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Failed to read uploaded file")
	}
	defer f.Close()

	uploaded, err := s.logos.Upload(c.Request().Context(), fh.Filename, fh.Size, f)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		s.logger.WithError(err).Error("Failed to upload logo")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, uploaded)
}

func (s *Server) generateFromPanels(c echo.Context) error {
	req, err := s.parseGenerateForm(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	file, err := s.reports.GenerateFromPanels(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return errorJSON(c, http.StatusBadRequest, err.Error())
		default:
			s.logger.WithError(err).Error("Failed to generate report")
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
	}

	if file.ReportID != 0 {
		c.Response().Header().Set("X-Report-ID", strconv.FormatUint(uint64(file.ReportID), 10))
	}
	setAttachment(c, file.Filename)
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}

// parseGenerateForm reads the multipart form, preferring the "dashboards" list and
// falling back to the legacy dashboard_uid/panel_ids pair.
func (s *Server) parseGenerateForm(c echo.Context) (service.GenerateRequest, error) {
	req := service.GenerateRequest{
		Title:       strings.TrimSpace(c.FormValue("report_title")),
		CompanyName: strings.TrimSpace(c.FormValue("company_name")),
		LogoPath:    strings.TrimSpace(c.FormValue("logo_path")),
	}
	if req.Title == "" {
		req.Title = s.defaultTitle
	}

	tr, err := parseTimeRange(c.FormValue("time_range"))
	if err != nil {
		return req, err
	}
	req.TimeRange = tr

	if raw := c.FormValue("dashboards"); raw != "" {
		var list []service.DashboardSelection
		// an unparseable list falls back to the legacy fields
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			req.Dashboards = list
		}
	}

	if len(req.Dashboards) == 0 {
		var ids service.PanelIDs
		if err := json.Unmarshal([]byte(c.FormValue("panel_ids")), &ids); err != nil {
			return req, errors.New("invalid panel_ids format")
		}
		if len(ids) == 0 {
			return req, errors.New("panel_ids must be a non-empty array of panel IDs")
		}
		req.Dashboards = []service.DashboardSelection{{UID: c.FormValue("dashboard_uid"), Panels: ids}}
	}

	return req, nil
}

func parseTimeRange(raw string) (models.TimeRange, error) {
	invalid := errors.New("time_range must be a JSON object with 'from' and 'to' fields")

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return models.TimeRange{}, invalid
	}
	from, okFrom := fields["from"]
	to, okTo := fields["to"]
	if !okFrom || !okTo || from == nil || to == nil {
		return models.TimeRange{}, invalid
	}
	return models.TimeRange{From: fmt.Sprint(from), To: fmt.Sprint(to)}, nil
}

func (s *Server) listHistory(c echo.Context) error {
	params := service.ListReportParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
		Search:   c.QueryParam("search"),
	}

	result, err := s.reports.ListReports(c.Request().Context(), params)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list reports")
		return errorJSON(c, http.StatusInternalServerError, "Failed to list reports")
	}
	return c.JSON(http.StatusOK, result)
}

// downloadReport streams an archived report
func (s *Server) downloadReport(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid report ID")
	}

	rc, filename, err := s.reports.GetReportFile(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			return errorJSON(c, http.StatusNotFound, "Report not found")
		}
		s.logger.WithError(err).Error("Failed to get report file")
		return errorJSON(c, http.StatusInternalServerError, "Failed to get report file")
	}
	defer rc.Close()

	setAttachment(c, filename)
	return c.Stream(http.StatusOK, service.XLSXContentType, rc)
}

// deleteReport handles report deletion
func (s *Server) deleteReport(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid report ID")
	}

	if err := s.reports.DeleteReport(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			return errorJSON(c, http.StatusNotFound, "Report not found")
		}
		s.logger.WithError(err).Error("Failed to delete report")
		return errorJSON(c, http.StatusInternalServerError, "Failed to delete report")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Report deleted successfully",
	})
}

func (s *Server) serveUpload(c echo.Context) error {
	filename := c.Param("filename")

	rc, err := s.logos.Open(c.Request().Context(), filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return errorJSON(c, http.StatusBadRequest, "Invalid filename")
		case errors.Is(err, storage.ErrNotFound):
			return errorJSON(c, http.StatusNotFound, "File not found")
		default:
			s.logger.WithError(err).Error("Failed to open upload")
			return errorJSON(c, http.StatusInternalServerError, "Failed to open file")
		}
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

func setAttachment(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func queryOr(c echo.Context, name, def string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return def
}

func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return v
}
