package otel

import (
	"context"
	"errors"
	"sync"

	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
	reqid "github.com/hanpama/gqlfeed/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/hanpama/gqlfeed"

// Setup configures OTLP trace and metric export to endpoint, installs the
// providers globally, and attaches eventbus subscribers. If endpoint is empty,
// no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	ctx := context.Background()
	dial := grpc.WithTransportCredentials(insecure.NewCredentials())
	texp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(dial))
	if err != nil {
		return nil, err
	}
	mexp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(dial))
	if err != nil {
		_ = texp.Shutdown(ctx)
		return nil, err
	}
	return install(service, sdktrace.WithBatcher(texp), sdkmetric.NewPeriodicReader(mexp))
}

func install(service string, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) (func(context.Context) error, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	)
	tp := sdktrace.NewTracerProvider(spans, sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	unregister, err := Register(tp, mp)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		unregister()
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Register subscribes span and metric recording to the global event bus.
func Register(tp trace.TracerProvider, mp metric.MeterProvider) (unregister func(), err error) {
	s, err := newSubscriber(tp, mp)
	if err != nil {
		return nil, err
	}
	return s.register(), nil
}

type subscriber struct {
	tracer    trace.Tracer
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	gqlSpans  sync.Map // rid -> trace.Span
	httpSpans sync.Map // rid -> trace.Span
}

func newSubscriber(tp trace.TracerProvider, mp metric.MeterProvider) (*subscriber, error) {
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter(
		"graphql.client.requests",
		metric.WithDescription("GraphQL operations executed"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"graphql.client.duration",
		metric.WithDescription("GraphQL operation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &subscriber{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}, nil
}

// status classifies a finished operation for metric attributes.
func status(e events.QueryFinish) string {
	switch {
	case e.Err != nil:
		return "transport_error"
	case !e.HasData:
		return "error"
	case len(e.Errors) > 0:
		return "partial"
	default:
		return "ok"
	}
}

func (s *subscriber) register() func() {
	var unsubs []func()

	unsubs = append(unsubs, eventbus.Subscribe(func(ctx context.Context, e events.QueryStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "graphql.client.operation", trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.String("graphql.request_id", rid),
		)
		if parent, ok := reqid.ParentFromContext(ctx); ok {
			span.SetAttributes(attribute.String("graphql.parent_request_id", parent))
		}
		s.gqlSpans.Store(rid, span)
	}))

	unsubs = append(unsubs, eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
		attrs := []attribute.KeyValue{
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("status", status(e)),
		}
		s.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		s.duration.Record(ctx, float64(e.Duration.Milliseconds()), metric.WithAttributes(attrs...))

		rid, _ := reqid.FromContext(ctx)
		v, ok := s.gqlSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Bool("graphql.has_data", e.HasData),
			attribute.Int("graphql.error_count", len(e.Errors)),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		} else if !e.HasData {
			span.SetStatus(codes.Error, "no data")
		}
		span.End()
	}))

	unsubs = append(unsubs, eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.gqlSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "http.client", trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			semconv.HTTPURLKey.String(e.Request.URL.String()),
		)
		s.httpSpans.Store(rid, span)
	}))

	unsubs = append(unsubs, eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if e.Status != 0 {
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		}
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
