package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger instruments.
type Metrics struct {
	transactions     metric.Int64Counter
	voids            metric.Int64Counter
	recalculations   metric.Int64Counter
	driftDetected    metric.Int64Counter
	versionConflicts metric.Int64Counter
	lockWait         metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the ledger instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cariledger"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("cari_ledger_transactions_total")
	if err != nil {
		return nil, err
	}
	voids, err := meter.Int64Counter("cari_ledger_voids_total")
	if err != nil {
		return nil, err
	}
	recalculations, err := meter.Int64Counter("cari_ledger_recalculations_total")
	if err != nil {
		return nil, err
	}
	driftDetected, err := meter.Int64Counter("cari_ledger_drift_detected_total")
	if err != nil {
		return nil, err
	}
	versionConflicts, err := meter.Int64Counter("cari_ledger_version_conflicts_total")
	if err != nil {
		return nil, err
	}
	lockWait, err := meter.Float64Histogram("cari_ledger_lock_wait_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:     transactions,
		voids:            voids,
		recalculations:   recalculations,
		driftDetected:    driftDetected,
		versionConflicts: versionConflicts,
		lockWait:         lockWait,
	}, nil
}

// NewNoop returns instruments backed by the noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordTransaction(ctx context.Context, transactionType, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("transaction_type", strings.TrimSpace(transactionType)),
		attribute.String("currency", strings.TrimSpace(currency)),
	)
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordVoid(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.TrimSpace(currency)))
	m.voids.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecalculation counts one account recalculation; result is "ok" or "failed".
func (m *Metrics) RecordRecalculation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.recalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDrift(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.TrimSpace(currency)))
	m.driftDetected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordVersionConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.versionConflicts.Add(ctx, 1)
}

func (m *Metrics) ObserveLockWait(ctx context.Context, backend string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.lockWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"transaction_type": {},
	"currency":         {},
	"result":           {},
	"backend":          {},
	"method":           {},
	"route":            {},
	"status_code":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
