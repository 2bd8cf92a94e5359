package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the Prometheus output contains a metric matching the name,
// a partial label pattern and the value. The exporter adds scope labels, hence the regex.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)
	assert.NotNil(t, bm)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	noOp := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, noOp)

	noOp.RecordOperation(context.Background(), "evidence", "evidence_admit", "success")
	noOp.RecordDuration(context.Background(), "evidence", "evidence_admit", time.Millisecond, "success")
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "evidence", "evidence_admit", "success")
	bm.RecordOperation(ctx, "evidence", "evidence_admit", "success")
	bm.RecordOperation(ctx, "evidence", "evidence_admit", "blocked")
	bm.RecordOperation(ctx, "evidence", "evidence_prove", "error")
	bm.RecordDuration(ctx, "evidence", "evidence_admit", 5*time.Millisecond, "success")
	bm.RecordDuration(ctx, "evidence", "evidence_admit", 7*time.Millisecond, "success")

	output := scrape(t, provider)
	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="evidence".*operation="evidence_admit".*status="success"`, `2`)
	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="evidence".*operation="evidence_admit".*status="blocked"`, `1`)
	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="evidence".*operation="evidence_prove".*status="error"`, `1`)
	assertMetricLine(t, output, `integration_test_operation_duration_seconds_count`,
		`domain="evidence".*operation="evidence_admit".*status="success"`, `2`)
}

type fakeLedger struct {
	id   string
	size int
	err  error
}

func (f *fakeLedger) ID() string { return f.id }

func (f *fakeLedger) Snapshot() (string, int, error) { return "", f.size, f.err }

func TestRegisterLedgerGauges(t *testing.T) {
	provider, err := NewProvider("gauge_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	main := &fakeLedger{id: "main", size: 3}
	broken := &fakeLedger{id: "broken", err: errors.New("closed")}
	require.NoError(t, RegisterLedgerGauges(provider.MeterProvider(), "gauge_test", main, broken))

	output := scrape(t, provider)
	assertMetricLine(t, output, `gauge_test_ledger_leaves`, `ledger_id="main"`, `3`)
	assert.NotContains(t, output, `ledger_id="broken"`)

	main.size = 5
	assertMetricLine(t, scrape(t, provider), `gauge_test_ledger_leaves`, `ledger_id="main"`, `5`)
}
