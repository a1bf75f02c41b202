// Package report builds the daily sales report from a day of lake transactions.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/t3/lake/reporting/pkg/insights"
)

// TruckFigure is a per-truck line of the report. Revenue is in pence.
type TruckFigure struct {
	TruckID   int64  `json:"truck_id"`
	TruckName string `json:"truck_name"`
	Sales     int    `json:"sales"`
	Revenue   int64  `json:"revenue"`
}

// DailyReport summarises one UTC calendar day.
type DailyReport struct {
	Date            time.Time     `json:"date"`
	TotalRevenue    int64         `json:"total_revenue"`
	NumberOfSales   int           `json:"number_of_sales"`
	SalesPerTruck   []TruckFigure `json:"sales_per_truck"`
	RevenuePerTruck []TruckFigure `json:"revenue_per_truck"`
}

// Build aggregates the day's transactions per truck id. Repeated transaction ids are counted once.
func Build(day time.Time, txns []insights.DailyTransaction) DailyReport {
	y, m, d := day.UTC().Date()
	r := DailyReport{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}

	seen := make(map[int64]bool, len(txns))
	byTruck := map[int64]*TruckFigure{}
	for _, t := range txns {
		if seen[t.TransactionID] {
			continue
		}
		seen[t.TransactionID] = true

		r.NumberOfSales++
		r.TotalRevenue += t.Total

		f, ok := byTruck[t.TruckID]
		if !ok {
			f = &TruckFigure{TruckID: t.TruckID, TruckName: t.TruckName}
			byTruck[t.TruckID] = f
		}
		f.Sales++
		f.Revenue += t.Total
	}

	figures := make([]TruckFigure, 0, len(byTruck))
	for _, f := range byTruck {
		figures = append(figures, *f)
	}

	r.SalesPerTruck = append([]TruckFigure(nil), figures...)
	sort.Slice(r.SalesPerTruck, func(i, j int) bool {
		a, b := r.SalesPerTruck[i], r.SalesPerTruck[j]
		if a.Sales != b.Sales {
			return a.Sales > b.Sales
		}
		if a.TruckName != b.TruckName {
			return a.TruckName < b.TruckName
		}
		return a.TruckID < b.TruckID
	})

	r.RevenuePerTruck = figures
	sort.Slice(r.RevenuePerTruck, func(i, j int) bool {
		a, b := r.RevenuePerTruck[i], r.RevenuePerTruck[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.TruckName != b.TruckName {
			return a.TruckName < b.TruckName
		}
		return a.TruckID < b.TruckID
	})
	return r
}

// Pounds formats an amount in pence as pounds with two decimal places.
func Pounds(pence int64) string {
	return "£" + decimal.New(pence, -2).StringFixed(2)
}
