// Package templates holds the server-rendered dashboard. The page is a shell;
// its numbers arrive from /sse/dashboard as Datastar signal and element patches.
package templates

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"

	"sales-analytics/internal/models"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// SummaryCardsID is the element replaced by SummaryCards and Unavailable.
const SummaryCardsID = "summary-cards"

var pageTemplates = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"money": money,
	"card":  func(label string, value any) cardData { return cardData{Label: label, Value: value} },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sales Analytics</title>
<script type="module" src="{{.Script}}"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1f2933; }
.cards { display: flex; gap: 1rem; }
.card { border: 1px solid #d9e2ec; border-radius: 8px; padding: 1rem 1.5rem; min-width: 12rem; }
.card .value { font-size: 1.6rem; font-weight: 600; }
.error { color: #b42318; }
pre { background: #f5f7fa; padding: 1rem; border-radius: 8px; overflow-x: auto; }
</style>
</head>
<body data-signals="{countrySales: {}, productSales: {}, monthlySales: {}}" data-init="@get('/sse/dashboard')">
<h1>Sales Analytics</h1>
<div id="{{.CardsID}}" class="cards"><div class="card">Loading&hellip;</div></div>
<h2>Sales by country</h2>
<pre data-json-signals="{include: /^countrySales/}"></pre>
<h2>Sales by product line</h2>
<pre data-json-signals="{include: /^productSales/}"></pre>
<h2>Monthly sales</h2>
<pre data-json-signals="{include: /^monthlySales/}"></pre>
</body>
</html>
{{define "card"}}<div class="card"><div>{{.Label}}</div><div class="value">{{.Value}}</div></div>{{end}}
{{define "summary"}}<div id="{{.CardsID}}" class="cards">
{{- template "card" (card "Total sales" (money .Summary.TotalSales))}}
{{- template "card" (card "Orders" .Summary.TotalOrders)}}
{{- template "card" (card "Average order" (money .Summary.AverageOrderValue))}}</div>{{end}}
{{define "unavailable"}}<div id="{{.CardsID}}" class="cards"><div class="card error">{{.Message}}</div></div>{{end}}`))

type cardData struct {
	Label string
	Value any
}

func Dashboard() templ.Component {
	return render("dashboard", struct {
		Script  string
		CardsID string
	}{datastarScript, SummaryCardsID})
}

func SummaryCards(summary models.DashboardSummary) templ.Component {
	return render("summary", struct {
		CardsID string
		Summary models.DashboardSummary
	}{SummaryCardsID, summary})
}

func Unavailable(message string) templ.Component {
	return render("unavailable", struct {
		CardsID string
		Message string
	}{SummaryCardsID, message})
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return pageTemplates.ExecuteTemplate(w, name, data)
	})
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}
