package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/t3/lake/reporting/pkg/insights"
	laketesting "github.com/t3/lake/utils/pkg/testing"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func sampleTransactions() []insights.DailyTransaction {
	return []insights.DailyTransaction{
		{TransactionID: 1, TruckID: 1, TruckName: "Burrito Madness", Total: 1000, PaymentMethod: "cash", At: day.Add(10 * time.Hour)},
		{TransactionID: 2, TruckID: 1, TruckName: "Burrito Madness", Total: 550, PaymentMethod: "card", At: day.Add(11 * time.Hour)},
		{TransactionID: 3, TruckID: 2, TruckName: "Kings of Kebabs", Total: 2500, PaymentMethod: "card", At: day.Add(12 * time.Hour)},
		{TransactionID: 3, TruckID: 2, TruckName: "Kings of Kebabs", Total: 2500, PaymentMethod: "card", At: day.Add(12 * time.Hour)},
		{TransactionID: 4, TruckID: 5, TruckName: "Cupcakes by Michelle", Total: 300, PaymentMethod: "card", At: day.Add(13 * time.Hour)},
	}
}

func TestLake_Report_Build(t *testing.T) {
	t.Parallel()

	t.Run("aggregates and de-duplicates", func(t *testing.T) {
		t.Parallel()

		r := Build(day.Add(15*time.Hour), sampleTransactions())
		require.Equal(t, day, r.Date)
		require.Equal(t, 4, r.NumberOfSales)
		require.EqualValues(t, 4350, r.TotalRevenue)

		require.Equal(t, []TruckFigure{
			{TruckID: 1, TruckName: "Burrito Madness", Sales: 2, Revenue: 1550},
			{TruckID: 5, TruckName: "Cupcakes by Michelle", Sales: 1, Revenue: 300},
			{TruckID: 2, TruckName: "Kings of Kebabs", Sales: 1, Revenue: 2500},
		}, r.SalesPerTruck)
		require.Equal(t, []TruckFigure{
			{TruckID: 2, TruckName: "Kings of Kebabs", Sales: 1, Revenue: 2500},
			{TruckID: 1, TruckName: "Burrito Madness", Sales: 2, Revenue: 1550},
			{TruckID: 5, TruckName: "Cupcakes by Michelle", Sales: 1, Revenue: 300},
		}, r.RevenuePerTruck)
	})

	t.Run("trucks sharing a name stay separate", func(t *testing.T) {
		t.Parallel()

		r := Build(day, []insights.DailyTransaction{
			{TransactionID: 1, TruckID: 3, TruckName: "Hartmann's", Total: 700, PaymentMethod: "card", At: day.Add(9 * time.Hour)},
			{TransactionID: 2, TruckID: 6, TruckName: "Hartmann's", Total: 400, PaymentMethod: "cash", At: day.Add(10 * time.Hour)},
			{TransactionID: 3, TruckID: 6, TruckName: "Hartmann's", Total: 100, PaymentMethod: "cash", At: day.Add(11 * time.Hour)},
		})
		require.Equal(t, []TruckFigure{
			{TruckID: 6, TruckName: "Hartmann's", Sales: 2, Revenue: 500},
			{TruckID: 3, TruckName: "Hartmann's", Sales: 1, Revenue: 700},
		}, r.SalesPerTruck)
		require.Equal(t, []TruckFigure{
			{TruckID: 3, TruckName: "Hartmann's", Sales: 1, Revenue: 700},
			{TruckID: 6, TruckName: "Hartmann's", Sales: 2, Revenue: 500},
		}, r.RevenuePerTruck)
	})

	t.Run("empty day", func(t *testing.T) {
		t.Parallel()

		r := Build(day, nil)
		require.Zero(t, r.NumberOfSales)
		require.Zero(t, r.TotalRevenue)
		require.Empty(t, r.SalesPerTruck)
	})
}

func TestLake_Report_Pounds(t *testing.T) {
	t.Parallel()

	require.Equal(t, "£43.50", Pounds(4350))
	require.Equal(t, "£0.05", Pounds(5))
	require.Equal(t, "£0.00", Pounds(0))
}

func TestLake_Report_RenderHTML(t *testing.T) {
	t.Parallel()

	txns := sampleTransactions()
	txns[0].TruckName = "<script>alert(1)</script>"
	html, err := RenderHTML(Build(day, txns))
	require.NoError(t, err)

	require.Contains(t, html, "<title>T3 DAILY REPORT</title>")
	require.Contains(t, html, "<p>2024-03-04</p>")
	require.Contains(t, html, "Total Transactions: 4")
	require.Contains(t, html, "Total Revenue: £43.50")
	require.Contains(t, html, "<td>Kings of Kebabs</td><td>£25.00</td>")
	require.Contains(t, html, "&lt;script&gt;")
	require.NotContains(t, html, "<script>alert(1)</script>")
}

type fakeSource struct {
	txns []insights.DailyTransaction
	err  error
	day  time.Time
}

func (f *fakeSource) DailyTransactions(_ context.Context, day time.Time) ([]insights.DailyTransaction, error) {
	f.day = day
	return f.txns, f.err
}

type fakeNotifier struct {
	reports []DailyReport
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, r DailyReport) error {
	f.reports = append(f.reports, r)
	return f.err
}

func TestLake_Report_Handler(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 5, 6, 30, 0, 0, time.UTC))

	t.Run("reports yesterday", func(t *testing.T) {
		t.Parallel()

		src := &fakeSource{txns: sampleTransactions()}
		notifier := &fakeNotifier{err: errors.New("slack down")}
		h, err := NewHandler(HandlerConfig{Logger: laketesting.NewLogger(), Source: src, Clock: clock, Notifier: notifier})
		require.NoError(t, err)

		out, err := h.Handle(t.Context(), json.RawMessage(`{}`))
		require.NoError(t, err)
		require.Equal(t, day, src.day)
		require.Contains(t, out["html"], "Total Transactions: 4")
		require.Len(t, notifier.reports, 1)
	})

	t.Run("source error", func(t *testing.T) {
		t.Parallel()

		h, err := NewHandler(HandlerConfig{Logger: laketesting.NewLogger(), Source: &fakeSource{err: errors.New("boom")}, Clock: clock})
		require.NoError(t, err)

		_, err = h.Handle(t.Context(), nil)
		require.ErrorContains(t, err, "failed to query transactions: boom")
	})

	t.Run("config", func(t *testing.T) {
		t.Parallel()

		_, err := NewHandler(HandlerConfig{})
		require.EqualError(t, err, "logger is required")
		_, err = NewHandler(HandlerConfig{Logger: laketesting.NewLogger()})
		require.EqualError(t, err, "transaction source is required")
	})
}

func TestLake_Report_SlackNotifier(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		form url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		form = r.PostForm
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(SlackConfig{Token: "xoxb-test", Channel: "C123", APIURL: srv.URL + "/"})
	require.NoError(t, err)
	require.NoError(t, n.Notify(t.Context(), Build(day, sampleTransactions())))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "C123", form.Get("channel"))
	require.True(t, strings.HasPrefix(form.Get("text"), "*T3 daily report for 2024-03-04*"))
	require.Contains(t, form.Get("text"), "Kings of Kebabs: 1 sales, £25.00")

	_, err = NewSlackNotifier(SlackConfig{Token: "xoxb-test"})
	require.EqualError(t, err, "slack channel is required")
}
