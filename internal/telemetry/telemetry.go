package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/logger"
)

// Version is reported as the instrumentation scope version of bridged logs.
var Version = "dev"

// Providers bundles what the services need from OpenTelemetry.
type Providers struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	Logger   *zap.SugaredLogger
	Shutdown func(context.Context) error
}

type exporters struct {
	trace  sdktrace.SpanExporter
	metric sdkmetric.Exporter
	log    log.Exporter
}

// Init sets up tracing, metrics and logging. With telemetry disabled or the
// "none" exporter it returns no-op providers and a file-only logger.
func Init(ctx context.Context, tel config.Telemetry, logCfg config.Log) (Providers, error) {
	if !tel.Enabled || tel.Exporter == "none" {
		return Noop(logger.NewLogger(logCfg.LogDir, logCfg.LogLevel)), nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(tel.ServiceName)),
	)
	if err != nil {
		return Providers{}, err
	}

	var exp exporters
	switch tel.Exporter {
	case "stdout":
		exp, err = stdoutExporters()
	case "otlp":
		exp, err = otlpExporters(ctx, tel)
	default:
		err = fmt.Errorf("unsupported exporter: %s", tel.Exporter)
	}
	if err != nil {
		return Providers{}, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp.trace),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metric)),
	)
	otel.SetMeterProvider(mp)

	lp := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exp.log)),
		log.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	cores := []zapcore.Core{
		otelzap.NewCore(
			tel.ServiceName,
			otelzap.WithLoggerProvider(lp),
			otelzap.WithVersion(Version),
		),
	}
	if logCfg.LogDir != "" {
		cores = append(cores, logger.FileCore(logCfg.LogDir, logger.ParseLevel(logCfg.LogLevel)))
	}
	zapLogger := zap.New(zapcore.NewTee(cores...))

	shutdown := func(ctx context.Context) error {
		err := errors.Join(
			tp.Shutdown(ctx),
			lp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
		_ = zapLogger.Sync()
		return err
	}

	return Providers{
		Tracer:   otel.Tracer(tel.ServiceName),
		Meter:    otel.Meter(tel.ServiceName),
		Logger:   zapLogger.Sugar(),
		Shutdown: shutdown,
	}, nil
}

// Noop wraps lg with providers that record nothing.
func Noop(lg *zap.SugaredLogger) Providers {
	return Providers{
		Tracer: tracenoop.NewTracerProvider().Tracer("grant-processor"),
		Meter:  metricnoop.NewMeterProvider().Meter("grant-processor"),
		Logger: lg,
		Shutdown: func(context.Context) error {
			_ = lg.Sync()
			return nil
		},
	}
}

func stdoutExporters() (exporters, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return exporters{}, err
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	if err != nil {
		return exporters{}, err
	}
	logExp, err := stdoutlog.New()
	if err != nil {
		return exporters{}, err
	}
	return exporters{trace: traceExp, metric: metricExp, log: logExp}, nil
}

func otlpExporters(ctx context.Context, tel config.Telemetry) (exporters, error) {
	if tel.Endpoint == "" {
		return exporters{}, fmt.Errorf("OTLP endpoint required")
	}

	var (
		exp         exporters
		traceClient otlptrace.Client
		err         error
	)
	switch tel.Protocol {
	case "", "grpc":
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tel.Endpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(tel.Endpoint)}
		logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(tel.Endpoint)}
		if tel.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
			logOpts = append(logOpts, otlploggrpc.WithInsecure())
		}
		if len(tel.Headers) > 0 {
			traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(tel.Headers))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(tel.Headers))
			logOpts = append(logOpts, otlploggrpc.WithHeaders(tel.Headers))
		}
		traceClient = otlptracegrpc.NewClient(traceOpts...)
		if exp.metric, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
			return exporters{}, err
		}
		if exp.log, err = otlploggrpc.New(ctx, logOpts...); err != nil {
			return exporters{}, err
		}
	case "http":
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(tel.Endpoint)}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(tel.Endpoint)}
		logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(tel.Endpoint)}
		if tel.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
			logOpts = append(logOpts, otlploghttp.WithInsecure())
		}
		if len(tel.Headers) > 0 {
			traceOpts = append(traceOpts, otlptracehttp.WithHeaders(tel.Headers))
			metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(tel.Headers))
			logOpts = append(logOpts, otlploghttp.WithHeaders(tel.Headers))
		}
		traceClient = otlptracehttp.NewClient(traceOpts...)
		if exp.metric, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			return exporters{}, err
		}
		if exp.log, err = otlploghttp.New(ctx, logOpts...); err != nil {
			return exporters{}, err
		}
	default:
		return exporters{}, fmt.Errorf("invalid protocol: %s", tel.Protocol)
	}

	if exp.trace, err = otlptrace.New(ctx, traceClient); err != nil {
		return exporters{}, err
	}
	return exp, nil
}
