package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"unicode/utf8"

	"report_wizard/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"

	logoMaxWidth  = 200
	logoMaxHeight = 80
	logoRows      = 5

	panelHeaderRow = 4
	minColWidth    = 10
	maxColWidth    = 60
	mergeLastCol   = "F"

	timestampLayout = "2006-01-02 15:04:05"
)

// ExcelGenerator renders reports with excelize
type ExcelGenerator struct{}

// NewExcelGenerator returns the XLSX report generator
func NewExcelGenerator() *ExcelGenerator {
	return &ExcelGenerator{}
}

type excelStyles struct {
	title, header, subheader, tocHeader, tocCell, normal, small int
}

// Generate builds a workbook with a Summary sheet and one sheet per panel
func (g *ExcelGenerator) Generate(ctx context.Context, doc ReportDocument) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	st, err := newExcelStyles(f)
	if err != nil {
		return nil, fmt.Errorf("create styles: %w", err)
	}

	if err := g.writeSummary(f, st, doc); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}

	for i, panel := range doc.Panels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.writePanel(f, st, panelSheetName(i), i, panel); err != nil {
			return nil, fmt.Errorf("panel sheet %d: %w", i+1, err)
		}
	}

	f.SetActiveSheet(0)
	return f.WriteToBuffer()
}

func newExcelStyles(f *excelize.File) (excelStyles, error) {
	thin := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	left := &excelize.Alignment{Horizontal: "left", Vertical: "center"}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	defs := []*excelize.Style{
		{Font: &excelize.Font{Size: 16, Bold: true}},
		{Font: &excelize.Font{Size: 12, Bold: true}, Fill: solidFill("4472C4"), Alignment: center},
		{Font: &excelize.Font{Size: 14, Bold: true}},
		{Font: &excelize.Font{Size: 12, Bold: true}, Fill: solidFill("D9E1F2"), Alignment: center, Border: thin},
		{Font: &excelize.Font{Size: 11}, Alignment: left, Border: thin},
		{Font: &excelize.Font{Size: 11}},
		{Font: &excelize.Font{Size: 10}, Alignment: left},
	}
	ids := make([]int, len(defs))
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return excelStyles{}, err
		}
		ids[i] = id
	}
	return excelStyles{
		title:     ids[0],
		header:    ids[1],
		subheader: ids[2],
		tocHeader: ids[3],
		tocCell:   ids[4],
		normal:    ids[5],
		small:     ids[6],
	}, nil
}

func solidFill(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
}

func (g *ExcelGenerator) writeSummary(f *excelize.File, st excelStyles, doc ReportDocument) error {
	row := 1
	if doc.Logo != nil {
		if err := f.AddPictureFromBytes(summarySheet, "A1", &excelize.Picture{
			Extension: "." + doc.Logo.Extension,
			File:      doc.Logo.Data,
			Format:    logoFormat(doc.Logo),
		}); err == nil {
			row += logoRows
		}
	}

	title := doc.Title
	if title == "" {
		title = defaultReportTitle
	}
	if err := mergedLine(f, summarySheet, row, title, st.title); err != nil {
		return err
	}
	row += 2

	if doc.CompanyName != "" {
		if err := mergedLine(f, summarySheet, row, "Company: "+doc.CompanyName, st.subheader); err != nil {
			return err
		}
		row++
	}

	if doc.TimeRange.From != "" && doc.TimeRange.To != "" {
		text := fmt.Sprintf("Time Range: %s to %s", doc.TimeRange.From, doc.TimeRange.To)
		if err := mergedLine(f, summarySheet, row, text, st.subheader); err != nil {
			return err
		}
		row++
	}

	if err := mergedLine(f, summarySheet, row, "Generated: "+doc.GeneratedAt.Format(timestampLayout), st.small); err != nil {
		return err
	}
	row += 2

	if err := mergedLine(f, summarySheet, row, "Report Contents", st.subheader); err != nil {
		return err
	}
	row++

	if err := writeRow(f, summarySheet, row, []interface{}{"Sheet", "Title", "Type", "Description"}, st.tocHeader); err != nil {
		return err
	}
	row++

	for i, p := range doc.Panels {
		title, panelType := panelLabels(i, p)
		values := []interface{}{panelSheetName(i), title, panelType, p.Panel.Description}
		if err := writeRow(f, summarySheet, row, values, st.tocCell); err != nil {
			return err
		}
		row++
	}

	for col, width := range map[string]float64{"A": 12, "B": 40, "C": 16, "D": 50} {
		if err := f.SetColWidth(summarySheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}

func (g *ExcelGenerator) writePanel(f *excelize.File, st excelStyles, sheet string, index int, p models.PanelData) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	title, _ := panelLabels(index, p)
	if err := mergedLine(f, sheet, 1, title, st.title); err != nil {
		return err
	}
	if p.Panel.Description != "" {
		if err := mergedLine(f, sheet, 2, p.Panel.Description, st.normal); err != nil {
			return err
		}
	}
	if p.Summary != "" {
		if err := mergedLine(f, sheet, 3, p.Summary, st.small); err != nil {
			return err
		}
	}

	if len(p.Fields) == 0 || len(p.Rows) == 0 {
		return nil
	}

	headers := make([]interface{}, len(p.Fields))
	widths := make([]int, len(p.Fields))
	for i, field := range p.Fields {
		headers[i] = field
		widths[i] = utf8.RuneCountInString(field)
	}
	if err := writeRow(f, sheet, panelHeaderRow, headers, st.header); err != nil {
		return err
	}

	row := panelHeaderRow + 1
	for _, values := range p.Rows {
		if len(values) > len(p.Fields) {
			values = values[:len(p.Fields)]
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			display := displayValue(v)
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, display); err != nil {
				return err
			}
			if n := utf8.RuneCountInString(fmt.Sprint(display)); n > widths[i] {
				widths[i] = min(n, maxColWidth)
			}
		}
		row++
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      panelHeaderRow,
		TopLeftCell: fmt.Sprintf("A%d", panelHeaderRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(max(minColWidth, min(maxColWidth, w+2)))); err != nil {
			return err
		}
	}
	return nil
}

func mergedLine(f *excelize.File, sheet string, row int, value string, style int) error {
	first := fmt.Sprintf("A%d", row)
	if err := f.MergeCell(sheet, first, fmt.Sprintf("%s%d", mergeLastCol, row)); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, first, value); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, first, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func panelSheetName(index int) string {
	return fmt.Sprintf("Sheet%d", index+1)
}

func panelLabels(index int, p models.PanelData) (string, string) {
	title, panelType := p.Panel.Title, p.Panel.Type
	if title == "" {
		title = fmt.Sprintf("Panel %d", index+1)
	}
	if panelType == "" {
		panelType = "unknown"
	}
	return title, panelType
}

// displayValue flattens lists and objects into a single cell
func displayValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return v
	}
}

// logoFormat scales raster logos down to fit the header area; svg keeps its size
func logoFormat(logo *LogoImage) *excelize.GraphicOptions {
	opts := &excelize.GraphicOptions{ScaleX: 1, ScaleY: 1}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(logo.Data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return opts
	}

	scale := 1.0
	if cfg.Height > logoMaxHeight {
		scale = float64(logoMaxHeight) / float64(cfg.Height)
	}
	if w := float64(cfg.Width) * scale; w > logoMaxWidth {
		scale = float64(logoMaxWidth) / float64(cfg.Width)
	}
	opts.ScaleX, opts.ScaleY = scale, scale
	return opts
}
