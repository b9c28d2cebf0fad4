package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"sales-analytics/internal/models"
)

const (
	colQuantityOrdered = "QUANTITYORDERED"
	colPriceEach       = "PRICEEACH"
	colMSRP            = "MSRP"
	colQuarterID       = "QTR_ID"
	colMonthID         = "MONTH_ID"
	colYearID          = "YEAR_ID"
	colCountry         = "COUNTRY"
	colProductLine     = "PRODUCTLINE"
	colSales           = "SALES"
)

// A UTF-8 byte order mark as it reads after Latin-1 decoding.
const latin1BOM = "\u00ef\u00bb\u00bf"

var requiredColumns = []string{
	colQuantityOrdered, colPriceEach, colMSRP, colQuarterID, colMonthID,
	colYearID, colCountry, colProductLine, colSales,
}

// CSVSource reads an ISO-8859-1 encoded sales export.
type CSVSource struct {
	Path string
}

func (s CSVSource) String() string {
	return "csv:" + s.Path
}

func (s CSVSource) Load(ctx context.Context) (*Dataset, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, &LoadError{Source: s.String(), Err: fmt.Errorf("open file: %w", err)}
	}
	defer file.Close()

	records, err := ParseCSV(ctx, file)
	if err != nil {
		return nil, &LoadError{Source: s.String(), Err: err}
	}
	return New(s.String(), records), nil
}

// ParseCSV decodes Latin-1 input and maps the required columns by header name.
// Any malformed row fails the whole parse. A header with no rows yields an
// empty result, not an error.
func ParseCSV(ctx context.Context, r io.Reader) ([]models.SalesRecord, error) {
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var records []models.SalesRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		rec, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, latin1BOM)))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (models.SalesRecord, error) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		rec  models.SalesRecord
		errs []error
	)
	parseInt := func(col string, dst *int) {
		v, err := strconv.Atoi(field(col))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
			return
		}
		*dst = v
	}
	parseFloat := func(col string, dst *float64) {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
			return
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s: non-finite value %q", col, field(col)))
			return
		}
		*dst = v
	}

	parseInt(colQuantityOrdered, &rec.QuantityOrdered)
	parseFloat(colPriceEach, &rec.PriceEach)
	parseFloat(colMSRP, &rec.MSRP)
	parseInt(colQuarterID, &rec.QuarterID)
	parseInt(colMonthID, &rec.MonthID)
	parseInt(colYearID, &rec.YearID)
	parseFloat(colSales, &rec.Sales)
	rec.Country = field(colCountry)
	rec.ProductLine = field(colProductLine)

	return rec, errors.Join(errs...)
}
