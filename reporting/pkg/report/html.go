package report

import (
	"bytes"
	"fmt"
	"html/template"
)

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"pounds": Pounds,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>T3 DAILY REPORT</title>
<style>
table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
th, td { border: 1px solid #999; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
</style>
</head>
<body style="font-family: Arial;">
<center>
<h1>T3 DAILY REPORT</h1>
<p>{{.Date.Format "2006-01-02"}}</p>

<h2>Key Metrics</h2>
<ul>
<li>Total Transactions: {{.NumberOfSales}}</li>
<li>Total Revenue: {{pounds .TotalRevenue}}</li>
</ul>

<h2>Trucks</h2>
<h3>Number Of Sales Per Truck</h3>
<table>
<tr><th>truck_name</th><th>transaction_count</th></tr>
{{- range .SalesPerTruck}}
<tr><td>{{.TruckName}}</td><td>{{.Sales}}</td></tr>
{{- end}}
</table>
<h3>Total Revenue Per Truck</h3>
<table>
<tr><th>truck_name</th><th>total_value</th></tr>
{{- range .RevenuePerTruck}}
<tr><td>{{.TruckName}}</td><td>{{pounds .Revenue}}</td></tr>
{{- end}}
</table>
</center>
</body>
</html>
`))

// RenderHTML renders the report as a standalone HTML page.
func RenderHTML(r DailyReport) (string, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
