// Package xlsx выгружает правила шага трансляции в лист Excel и загружает их обратно.
//
// Первая строка листа - заголовки вида "column_name (type)".
// Колонки сравнения помечаются " *", остальные - колонки обновления.
// Каждая следующая строка - одно правило. Ячейка с формулой хранится
// текстом, начинающимся с "=".
package xlsx

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

// DefaultSheetName используется, когда у шага нет таблицы
const DefaultSheetName = "Rules"

// maxSheetName - ограничение Excel на длину имени листа
const maxSheetName = 31

// ImportOptions - параметры загрузки правил
type ImportOptions struct {
	// Table - целевая таблица шага
	Table schema.Table

	// Columns - колонки из каталога. Тип и отображаемое имя колонки
	// берутся отсюда, заголовок листа используется только для неизвестных колонок.
	// Ссылки формул разрешаются по этому списку.
	Columns []schema.ColumnRef
}

// ToXLSX - выгрузить правила шага в файл
//
// Example:
//
//	err := xlsx.ToXLSX(step, "rates.xlsx", "")
func ToXLSX(step *steps.TranslateStep, filePath string, sheetName string) error {
	f, err := build(step, sheetName)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filePath)
}

// WriteXLSX - выгрузить правила шага в w
func WriteXLSX(step *steps.TranslateStep, w io.Writer, sheetName string) error {
	f, err := build(step, sheetName)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// FromXLSX - загрузить правила из файла
//
// Example:
//
//	step, err := xlsx.FromXLSX("rates.xlsx", "", xlsx.ImportOptions{Table: table, Columns: columns})
func FromXLSX(filePath string, sheetName string, opts ImportOptions) (*steps.TranslateStep, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return parse(f, sheetName, opts)
}

// ReadXLSX - загрузить правила из r
func ReadXLSX(r io.Reader, sheetName string, opts ImportOptions) (*steps.TranslateStep, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return parse(f, sheetName, opts)
}

func build(step *steps.TranslateStep, sheetName string) (*excelize.File, error) {
	if step == nil || len(step.CompareColumns)+len(step.UpdateColumns) == 0 {
		return nil, fmt.Errorf("step has no columns")
	}

	if sheetName == "" {
		sheetName = step.Table.Name
		if sheetName == "" {
			sheetName = DefaultSheetName
		}
	}
	if len(sheetName) > maxSheetName {
		sheetName = sheetName[:maxSheetName]
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	dateStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 14})

	columns := append(append([]schema.ColumnRef{}, step.CompareColumns...), step.UpdateColumns...)
	for col, c := range columns {
		cell := columnName(col+1) + "1"
		f.SetCellValue(sheetName, cell, formatHeader(c, col < len(step.CompareColumns)))
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
		f.SetColWidth(sheetName, columnName(col+1), columnName(col+1), 18)
	}

	conv := schema.NewConverter()
	for rowIdx, rule := range step.Rules {
		for col, c := range columns {
			if col >= len(rule.Cells) {
				break
			}
			cell := columnName(col+1) + strconv.Itoa(rowIdx+2)
			value := rule.Cells[col]

			if len(value.Formula) > 0 {
				f.SetCellStr(sheetName, cell, formatFormula(value.Formula))
				continue
			}
			tv, err := conv.ParseValue(value.Value, c.Type())
			switch {
			case err != nil:
				// невалидное значение выгружается как есть, его отклонит сборка шага
				f.SetCellStr(sheetName, cell, value.Value)
			case tv.IsNull:
			case tv.AmountValue != nil:
				f.SetCellValue(sheetName, cell, tv.AmountValue.InexactFloat64())
			case tv.TimeValue != nil:
				f.SetCellValue(sheetName, cell, *tv.TimeValue)
				f.SetCellStyle(sheetName, cell, cell, dateStyle)
			default:
				f.SetCellStr(sheetName, cell, value.Value)
			}
		}
	}

	return f, nil
}

func parse(f *excelize.File, sheetName string, opts ImportOptions) (*steps.TranslateStep, error) {
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q must have header and at least one rule row", sheetName)
	}

	known := make(map[string]schema.ColumnRef, len(opts.Columns))
	for _, c := range opts.Columns {
		if c.TableName == "" || c.TableName == opts.Table.Name {
			known[c.ColumnName] = c
		}
	}

	step := &steps.TranslateStep{Table: opts.Table}
	columns := make([]schema.ColumnRef, 0, len(rows[0]))
	for i, header := range rows[0] {
		name, dataType, compare := parseHeader(header)
		if name == "" {
			return nil, fmt.Errorf("column %s: empty header", columnName(i+1))
		}
		col, ok := known[name]
		if !ok {
			col = schema.ColumnRef{
				TableName:        opts.Table.Name,
				DisplayTableName: opts.Table.DisplayName,
				ColumnName:       name,
				DataType:         dataType,
			}
		}
		if compare {
			if len(step.UpdateColumns) > 0 {
				return nil, fmt.Errorf("column %s: compare column %q after update columns", columnName(i+1), name)
			}
			step.CompareColumns = append(step.CompareColumns, col)
		} else {
			step.UpdateColumns = append(step.UpdateColumns, col)
		}
		columns = append(columns, col)
	}

	resolve := resolver(opts)
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		if isBlank(row) {
			continue
		}

		rule := steps.Rule{Cells: make([]steps.Cell, len(columns))}
		for col, c := range columns {
			if col >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[col])
			if strings.HasPrefix(raw, "=") {
				formula, err := parseFormula(strings.TrimPrefix(raw, "="), resolve)
				if err != nil {
					return nil, fmt.Errorf("cell %s%d: %w", columnName(col+1), rowIdx+1, err)
				}
				rule.Cells[col].Formula = formula
				continue
			}
			rule.Cells[col].Value = convertFromExcel(raw, c.Type())
		}
		step.Rules = append(step.Rules, rule)
	}

	return step, nil
}

// formatHeader - "column_name (type)" или "column_name (type) *" для колонки сравнения
func formatHeader(c schema.ColumnRef, compare bool) string {
	header := fmt.Sprintf("%s (%s)", c.ColumnName, c.Type())
	if compare {
		header += " *"
	}
	return header
}

// parseHeader - parse header string "column_name (type)" or "column_name (type) *"
func parseHeader(header string) (name string, dataType schema.DataType, compare bool) {
	header = strings.TrimSpace(header)
	dataType = schema.DefaultType

	if strings.HasSuffix(header, " *") {
		compare = true
		header = strings.TrimSuffix(header, " *")
	}
	name = header

	if idx := strings.LastIndex(header, "("); idx > 0 {
		if endIdx := strings.LastIndex(header, ")"); endIdx > idx {
			name = strings.TrimSpace(header[:idx])
			dataType = schema.NormalizeType(header[idx+1 : endIdx])
		}
	}

	return name, dataType, compare
}

// convertFromExcel приводит сырое значение ячейки к вводу пользователя.
// Даты Excel хранит числом дней.
func convertFromExcel(value string, dataType schema.DataType) string {
	if value == "" || dataType != schema.TypeDate {
		return value
	}
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	ts, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return value
	}
	if ts.Equal(ts.Truncate(24 * time.Hour)) {
		return ts.Format("2006-01-02")
	}
	return ts.Format("2006-01-02 15:04:05")
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// columnName - convert column index to Excel column name (1 → A, 27 → AA)
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
