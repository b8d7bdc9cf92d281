package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"report_wizard/internal/models"
	"report_wizard/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func (s *Server) listDatasources(c echo.Context) error {
	sources, err := s.exports.Datasources(c.Request().Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list datasources")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"datasources": sources})
}

func (s *Server) listIndices(c echo.Context) error {
	id, err := datasourceID(c.QueryParam("datasource_id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	indices, err := s.exports.Indices(c.Request().Context(), id)
	if err != nil {
		return s.exportError(c, err, "Failed to list indices", logrus.Fields{"datasource_id": id})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"indices": indices})
}

func (s *Server) listFields(c echo.Context) error {
	id, err := datasourceID(c.QueryParam("datasource_id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	index := c.QueryParam("index")

	fields, err := s.exports.Fields(c.Request().Context(), id, index)
	if err != nil {
		return s.exportError(c, err, "Failed to list fields", logrus.Fields{"datasource_id": id, "index": index})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"fields": fields})
}

// generateExport renders selected fields of index documents into a single-sheet workbook
func (s *Server) generateExport(c echo.Context) error {
	id, err := datasourceID(c.FormValue("datasource_id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	params, err := c.FormParams()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid form")
	}

	filters := map[string]interface{}{}
	if raw := strings.TrimSpace(c.FormValue("filters")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return errorJSON(c, http.StatusBadRequest, "filters must be a JSON object")
		}
	}

	req := service.ExportRequest{
		DatasourceID: id,
		Index:        c.FormValue("index"),
		Fields:       params["fields"],
		Filters:      filters,
		Format:       c.FormValue("report_format"),
		Title:        strings.TrimSpace(c.FormValue("report_title")),
		LogoPath:     strings.TrimSpace(c.FormValue("logo_path")),
	}
	if req.Title == "" {
		req.Title = s.defaultTitle
	}

	file, err := s.exports.Export(c.Request().Context(), req)
	if err != nil {
		return s.exportError(c, err, "Failed to generate export", logrus.Fields{"datasource_id": id, "index": req.Index})
	}

	if file.ReportID != 0 {
		c.Response().Header().Set("X-Report-ID", strconv.FormatUint(uint64(file.ReportID), 10))
	}
	setAttachment(c, file.Filename)
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}

func (s *Server) exportError(c echo.Context, err error, msg string, fields logrus.Fields) error {
	if errors.Is(err, service.ErrInvalidRequest) || errors.Is(err, models.ErrUnsupportedDatasource) {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	s.logger.WithError(err).WithFields(fields).Error(msg)
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}

func datasourceID(raw string) (int, error) {
	if raw == "" {
		return 0, errors.New("datasource_id is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid datasource_id")
	}
	return id, nil
}
