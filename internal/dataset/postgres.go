package dataset

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sales-analytics/internal/models"
)

// Querier is the part of *pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the sales table with one row per order line.
type PostgresSource struct {
	DB    Querier
	Table string
}

func (s PostgresSource) String() string {
	return "postgres:" + s.Table
}

func (s PostgresSource) query() string {
	return fmt.Sprintf(`
    SELECT quantity_ordered, price_each, msrp, qtr_id, month_id, year_id, country, product_line, sales
    FROM %s
    ORDER BY year_id, month_id, country, product_line, sales`, pgx.Identifier{s.Table}.Sanitize())
}

func (s PostgresSource) Load(ctx context.Context) (*Dataset, error) {
	rows, err := s.DB.Query(ctx, s.query())
	if err != nil {
		return nil, &LoadError{Source: s.String(), Err: fmt.Errorf("query: %w", err)}
	}
	defer rows.Close()

	var records []models.SalesRecord
	for rows.Next() {
		var rec models.SalesRecord
		if err := rows.Scan(
			&rec.QuantityOrdered,
			&rec.PriceEach,
			&rec.MSRP,
			&rec.QuarterID,
			&rec.MonthID,
			&rec.YearID,
			&rec.Country,
			&rec.ProductLine,
			&rec.Sales,
		); err != nil {
			return nil, &LoadError{Source: s.String(), Err: fmt.Errorf("scan: %w", err)}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Source: s.String(), Err: err}
	}

	return New(s.String(), records), nil
}
