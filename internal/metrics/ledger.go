package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerSource reports the ledger size.
type LedgerSource interface {
	ID() string
	Snapshot() (string, int, error)
}

// RegisterLedgerGauges exposes the leaf count of each ledger as an observable gauge. The
// value is read at collection time, so nothing has to be recorded on append.
func RegisterLedgerGauges(meterProvider metric.MeterProvider, namespace string, ledgers ...LedgerSource) error {
	meter := meterProvider.Meter(namespace)

	leaves, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_ledger_leaves", namespace),
		metric.WithDescription("Number of leaves in the ledger"),
		metric.WithUnit("{leaf}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, l := range ledgers {
			_, size, err := l.Snapshot()
			if err != nil {
				continue
			}
			o.ObserveInt64(leaves, int64(size), metric.WithAttributes(attribute.String("ledger_id", l.ID())))
		}
		return nil
	}, leaves)
	if err != nil {
		return fmt.Errorf("failed to register ledger callback: %w", err)
	}
	return nil
}
