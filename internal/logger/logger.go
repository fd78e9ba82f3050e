// Package logger is the process-wide structured logger. It wraps zap with
// context-aware helpers that stamp OpenTelemetry trace and span ids onto each
// line, and it owns the tracer used to time cycle stages.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "scalper"

var (
	mu             sync.RWMutex
	base           = zap.NewNop()
	sugar          = base.Sugar()
	tracingEnabled bool
	tracer         trace.Tracer = otel.Tracer(serviceName)
	tracerProvider *sdktrace.TracerProvider
)

// Config selects the log level, encoding and whether spans are exported.
type Config struct {
	Level   string    // debug, info, warn, error
	Format  string    // json or console
	Tracing bool      // export OpenTelemetry spans
	Output  io.Writer // defaults to stderr
}

// ApplyEnv overrides cfg with LOG_LEVEL, LOG_FORMAT and LOG_TRACING_ENABLED
// when they are set.
func ApplyEnv(cfg Config) Config {
	cfg.Level = getEnvOrDefault("LOG_LEVEL", cfg.Level)
	cfg.Format = getEnvOrDefault("LOG_FORMAT", cfg.Format)
	if v := os.Getenv("LOG_TRACING_ENABLED"); v != "" {
		cfg.Tracing = v == "true"
	}
	return cfg
}

// Init replaces the global logger. It is safe to call more than once.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("log format %q: want json or console", cfg.Format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	base = l
	sugar = l.Sugar()
	mu.Unlock()

	if cfg.Tracing {
		if err := initTracer(out); err != nil {
			Warn(context.Background(), "tracing disabled", "error", err)
		}
	}
	return nil
}

func initTracer(w io.Writer) error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	tracer = tp.Tracer(serviceName)
	tracingEnabled = true
	mu.Unlock()
	return nil
}

// Shutdown flushes buffered log lines and exported spans.
func Shutdown(ctx context.Context) error {
	mu.RLock()
	l, tp := base, tracerProvider
	mu.RUnlock()

	_ = l.Sync()
	if tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// StartSpan starts a span on the package tracer. When tracing is off the
// global no-op provider hands back a span that records nothing.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	return t.Start(ctx, name, opts...)
}

func traceFields(ctx context.Context) []any {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []any{"trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String()}
}

func logger(ctx context.Context) *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if f := traceFields(ctx); f != nil {
		return s.With(f...)
	}
	return s
}

func Debug(ctx context.Context, msg string, kv ...any) { logger(ctx).Debugw(msg, kv...) }
func Info(ctx context.Context, msg string, kv ...any)  { logger(ctx).Infow(msg, kv...) }
func Warn(ctx context.Context, msg string, kv ...any)  { logger(ctx).Warnw(msg, kv...) }
func Error(ctx context.Context, msg string, kv ...any) { logger(ctx).Errorw(msg, kv...) }

// ErrorWithErr logs err and marks the active span as failed.
func ErrorWithErr(ctx context.Context, msg string, err error, kv ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logger(ctx).Errorw(msg, append([]any{"error", err}, kv...)...)
}

// Trade logs a position lifecycle event (open or close).
func Trade(ctx context.Context, instrument, event string, kv ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("trade_"+strings.ToLower(event), trace.WithAttributes(
			attribute.String("instrument", instrument),
		))
	}
	logger(ctx).Infow("trade "+strings.ToLower(event), append([]any{"type", "TRADE", "instrument", instrument, "event", event}, kv...)...)
}

// Decision logs the outcome of one evaluation cycle.
func Decision(ctx context.Context, instrument, outcome string, kv ...any) {
	logger(ctx).Infow("cycle decision", append([]any{"type", "DECISION", "instrument", instrument, "outcome", outcome}, kv...)...)
}

// OperationTimer ties a span to the wall time of one operation.
type OperationTimer struct {
	ctx   context.Context
	span  trace.Span
	name  string
	start time.Time
}

// StartOperation opens a span named op carrying kv as attributes.
func StartOperation(ctx context.Context, op string, kv ...any) *OperationTimer {
	ctx, span := StartSpan(ctx, op)
	span.SetAttributes(attributes(kv)...)
	Debug(ctx, "operation started", append([]any{"operation", op}, kv...)...)
	return &OperationTimer{ctx: ctx, span: span, name: op, start: time.Now()}
}

// Context returns the context carrying the operation span.
func (ot *OperationTimer) Context() context.Context { return ot.ctx }

// End closes the span successfully.
func (ot *OperationTimer) End(kv ...any) {
	d := time.Since(ot.start)
	ot.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
	ot.span.SetAttributes(attributes(kv)...)
	ot.span.SetStatus(codes.Ok, "")
	ot.span.End()
	Debug(ot.ctx, "operation completed", append([]any{"operation", ot.name, "duration_ms", d.Milliseconds()}, kv...)...)
}

// EndWithError closes the span as failed. Logging the error is left to the
// caller so a failure is reported once.
func (ot *OperationTimer) EndWithError(err error, kv ...any) {
	d := time.Since(ot.start)
	ot.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
	ot.span.SetAttributes(attributes(kv)...)
	ot.span.RecordError(err)
	ot.span.SetStatus(codes.Error, err.Error())
	ot.span.End()
}

func attributes(kv []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(key, v.String()))
		}
	}
	return attrs
}
