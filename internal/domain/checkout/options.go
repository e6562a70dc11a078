package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/veristore/veristore/internal/domain/checkout"

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	gateway PaymentGateway
	meters  metric.MeterProvider
	tracers trace.TracerProvider
}

// WithGateway enables gateway mode. Without a gateway the coordinator runs in
// direct mode: invoices get local numbers and redemption is the payment
// confirmation.
func WithGateway(g PaymentGateway) Option {
	return func(o *options) { o.gateway = g }
}

// WithMeterProvider sets the provider for checkout metrics.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.meters = p }
}

// WithTracerProvider sets the provider for checkout spans.
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(o *options) { o.tracers = p }
}

type telemetry struct {
	tracer     trace.Tracer
	orders     metric.Int64Counter
	invoices   metric.Int64Counter
	fulfilled  metric.Int64Counter
	dispensed  metric.Int64Counter
	deliveries metric.Int64Counter
}

func newTelemetry(o options) (*telemetry, error) {
	meters := o.meters
	if meters == nil {
		meters = metricnoop.NewMeterProvider()
	}
	tracers := o.tracers
	if tracers == nil {
		tracers = tracenoop.NewTracerProvider()
	}
	meter := meters.Meter(instrumentationName)

	t := &telemetry{tracer: tracers.Tracer(instrumentationName)}
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.orders, "veristore.orders.created", "Orders created"},
		{&t.invoices, "veristore.invoices.created", "Invoices created"},
		{&t.fulfilled, "veristore.invoices.resolved", "Invoices moved to a terminal status"},
		{&t.dispensed, "veristore.codes.dispensed", "Codes taken from the pool"},
		{&t.deliveries, "veristore.deliveries", "Delivery attempts"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, errors.Wrapf(err, "create counter %s", c.name)
		}
		*c.dst = counter
	}
	return t, nil
}

func (t *telemetry) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "checkout."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func attrs(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(kv...)
}
