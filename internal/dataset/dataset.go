// Package dataset holds the immutable table of historical sales rows and the
// sources it can be loaded from.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"slices"

	"sales-analytics/internal/models"
)

// Source loads a complete Dataset. Implementations never return a partial table.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
	String() string
}

// LoadError reports a dataset that could not be loaded.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load dataset from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Dataset is safe for concurrent readers; nothing mutates it after New.
type Dataset struct {
	records     []models.SalesRecord
	source      string
	fingerprint string
}

func New(source string, records []models.SalesRecord) *Dataset {
	owned := slices.Clone(records)
	return &Dataset{
		records:     owned,
		source:      source,
		fingerprint: fingerprint(owned),
	}
}

func (d *Dataset) Len() int {
	return len(d.records)
}

func (d *Dataset) Source() string {
	return d.source
}

// Fingerprint is a hex sha256 over every row, stable across loads of the same data.
func (d *Dataset) Fingerprint() string {
	return d.fingerprint
}

func (d *Dataset) Each(fn func(models.SalesRecord)) {
	for _, r := range d.records {
		fn(r)
	}
}

func (d *Dataset) Records() []models.SalesRecord {
	return slices.Clone(d.records)
}

// Features returns the model input matrix and sales labels, row-aligned.
func (d *Dataset) Features() ([][]float64, []float64) {
	x := make([][]float64, len(d.records))
	y := make([]float64, len(d.records))
	for i, r := range d.records {
		v := r.Features().Vector()
		x[i] = v[:]
		y[i] = r.Sales
	}
	return x, y
}

func fingerprint(records []models.SalesRecord) string {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	for _, r := range records {
		writeFloat(float64(r.QuantityOrdered))
		writeFloat(r.PriceEach)
		writeFloat(r.MSRP)
		writeFloat(float64(r.QuarterID))
		writeFloat(float64(r.MonthID))
		writeFloat(float64(r.YearID))
		writeString(r.Country)
		writeString(r.ProductLine)
		writeFloat(r.Sales)
	}
	return hex.EncodeToString(h.Sum(nil))
}
