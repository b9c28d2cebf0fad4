package models

// Feature order used for training and prediction. Changing it invalidates
// every fitted model.
var FeatureNames = []string{"quantityOrdered", "priceEach", "msrp", "quarterId", "monthId"}

const NumFeatures = 5

type SalesRecord struct {
	QuantityOrdered int
	PriceEach       float64
	MSRP            float64
	QuarterID       int
	MonthID         int
	YearID          int
	Country         string
	ProductLine     string
	Sales           float64
}

// Features returns the record's model inputs in FeatureNames order.
func (r SalesRecord) Features() Features {
	return Features{
		QuantityOrdered: float64(r.QuantityOrdered),
		PriceEach:       r.PriceEach,
		MSRP:            r.MSRP,
		QuarterID:       float64(r.QuarterID),
		MonthID:         float64(r.MonthID),
	}
}

// Features is a validated prediction input.
type Features struct {
	QuantityOrdered float64
	PriceEach       float64
	MSRP            float64
	QuarterID       float64
	MonthID         float64
}

func (f Features) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{f.QuantityOrdered, f.PriceEach, f.MSRP, f.QuarterID, f.MonthID}
}

type DashboardSummary struct {
	TotalSales        float64 `json:"totalSales"`
	TotalOrders       int     `json:"totalOrders"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

type Prediction struct {
	PredictedSales float64 `json:"predictedSales"`
}

// GroupKey names a single-field grouping of sales records.
type GroupKey string

const (
	GroupByCountry     GroupKey = "country"
	GroupByProductLine GroupKey = "productLine"
)
