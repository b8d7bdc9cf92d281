package service

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	tableSheet     = "Security Report"
	tableName      = "SecurityReportTable"
	tableStyleName = "TableStyleMedium2"
)

// TableDocument is a flat export of index documents rendered onto one sheet
type TableDocument struct {
	Title       string
	GeneratedAt time.Time
	Logo        *LogoImage
	Fields      []string
	Rows        [][]interface{}
}

// GenerateTable renders a single "Security Report" sheet holding the rows as an Excel table
func (g *ExcelGenerator) GenerateTable(ctx context.Context, doc TableDocument) (*bytes.Buffer, error) {
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("%w: no fields selected", ErrInvalidRequest)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tableSheet); err != nil {
		return nil, err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 16, Bold: true}})
	if err != nil {
		return nil, err
	}
	stampStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 10, Italic: true}})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      solidFill("DDDDDD"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	lastCol, err := excelize.ColumnNumberToName(len(doc.Fields))
	if err != nil {
		return nil, err
	}

	row := 1
	if doc.Logo != nil {
		if err := f.AddPictureFromBytes(tableSheet, "A1", &excelize.Picture{
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
	for _, line := range []struct {
		text  string
		style int
	}{
		{title, titleStyle},
		{"Generated: " + doc.GeneratedAt.Format(timestampLayout), stampStyle},
	} {
		first := fmt.Sprintf("A%d", row)
		if lastCol != "A" {
			if err := f.MergeCell(tableSheet, first, fmt.Sprintf("%s%d", lastCol, row)); err != nil {
				return nil, err
			}
		}
		if err := f.SetCellValue(tableSheet, first, line.text); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(tableSheet, first, first, line.style); err != nil {
			return nil, err
		}
		row++
	}
	row++

	headerRow := row
	headers := make([]interface{}, len(doc.Fields))
	widths := make([]int, len(doc.Fields))
	for i, field := range doc.Fields {
		headers[i] = field
		widths[i] = utf8.RuneCountInString(field)
	}
	if err := writeRow(f, tableSheet, headerRow, headers, headerStyle); err != nil {
		return nil, err
	}

	for _, values := range doc.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row++
		for i, v := range values {
			if i >= len(doc.Fields) {
				break
			}
			if v == nil {
				continue
			}
			display := displayValue(v)
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(tableSheet, cell, display); err != nil {
				return nil, err
			}
			if n := utf8.RuneCountInString(fmt.Sprint(display)); n > widths[i] {
				widths[i] = min(n, maxColWidth)
			}
		}
	}

	if err := f.SetPanes(tableSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	if err := f.AddTable(tableSheet, &excelize.Table{
		Range:     fmt.Sprintf("A%d:%s%d", headerRow, lastCol, row),
		Name:      tableName,
		StyleName: tableStyleName,
	}); err != nil {
		return nil, fmt.Errorf("add table: %w", err)
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(tableSheet, col, col, float64(min(maxColWidth, w+2))); err != nil {
			return nil, err
		}
	}

	return f.WriteToBuffer()
}
