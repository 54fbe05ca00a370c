// Package intake turns vendor invoices into STOCK_IN ledger entries.
package intake

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Line is one parsed vendor invoice row. Values are coerced leniently here and
// re-validated by the Importer.
type Line struct {
	Row         int        `json:"row"`
	Name        string     `json:"name"`
	Quantity    int64      `json:"quantity"`
	BuyingPrice string     `json:"buying_price,omitempty"`
	BatchNumber string     `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	RawExpiry   string     `json:"raw_expiry,omitempty"`
}

var expiryLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "01/02/2006"}

var fieldSeparator = regexp.MustCompile(`\t|,|;|\|`)

// Parse picks a parser from the file extension.
func Parse(filename string, r io.Reader) ([]Line, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	default:
		return ParseText(r)
	}
}

// ParseText reads delimited lines: name, quantity, buying_price, batch_number, expiry_date.
// Fields may be separated by tab, comma, semicolon or pipe. A header line is skipped.
func ParseText(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	var (
		lines []Line
		row   int
		first = true
	)
	for scanner.Scan() {
		row++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if first {
			first = false
			if isHeader(raw) {
				continue
			}
		}
		parts := fieldSeparator.Split(raw, -1)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		lines = append(lines, buildLine(row, parts))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("intake: read text: %w", err)
	}
	return lines, nil
}

func isHeader(raw string) bool {
	h := strings.ToLower(raw)
	return (strings.Contains(h, "name") && strings.Contains(h, "quantity")) ||
		(strings.Contains(h, "drug") && strings.Contains(h, "qty"))
}

func buildLine(row int, parts []string) Line {
	line := Line{Row: row, Name: readCell(parts, 0)}
	line.Quantity = coerceQuantity(readCell(parts, 1))
	line.BuyingPrice = readCell(parts, 2)
	line.BatchNumber = readCell(parts, 3)
	line.RawExpiry = readCell(parts, 4)
	line.ExpiryDate = parseExpiry(line.RawExpiry)
	return line
}

func coerceQuantity(raw string) int64 {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func parseExpiry(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

var headerAliases = map[string]string{
	"name":          "name",
	"medicine":      "name",
	"medicine name": "name",
	"drug":          "name",
	"product":       "name",
	"product name":  "name",
	"item":          "name",
	"quantity":      "quantity",
	"qty":           "quantity",
	"buying price":  "buying_price",
	"buy price":     "buying_price",
	"unit cost":     "buying_price",
	"unit price":    "buying_price",
	"price":         "buying_price",
	"cost":          "buying_price",
	"batch":         "batch_number",
	"batch number":  "batch_number",
	"batch no":      "batch_number",
	"lot":           "batch_number",
	"expiry":        "expiry_date",
	"expiry date":   "expiry_date",
	"exp":           "expiry_date",
	"exp date":      "expiry_date",
}

// ParseXLSX reads the first sheet of a workbook whose header row names the columns.
func ParseXLSX(r io.Reader) ([]Line, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("intake: open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("intake: excel file has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("intake: read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("intake: excel file is empty")
	}

	colMap := mapColumns(rows[0])
	for _, required := range []string{"name", "quantity"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("intake: missing required column: %s", required)
		}
	}

	lines := make([]Line, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		name := strings.TrimSpace(readCell(cells, colMap["name"]))
		if name == "" {
			continue
		}
		parts := []string{
			name,
			readMapped(cells, colMap, "quantity"),
			readMapped(cells, colMap, "buying_price"),
			readMapped(cells, colMap, "batch_number"),
			readMapped(cells, colMap, "expiry_date"),
		}
		lines = append(lines, buildLine(index+1, parts))
	}
	return lines, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		canonical, ok := headerAliases[normalizeHeader(col)]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	value = strings.TrimSuffix(value, ".")
	return strings.Join(strings.Fields(value), " ")
}

func readMapped(row []string, cols map[string]int, key string) string {
	idx, ok := cols[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(readCell(row, idx))
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
