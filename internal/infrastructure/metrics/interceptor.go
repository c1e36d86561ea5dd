package metrics

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// healthServicePrefix marks probe traffic that is kept out of the request metrics.
const healthServicePrefix = "/grpc.health.v1.Health/"

// UnaryServerInterceptor records request counts, latency and failures per
// method. Failures are labelled with their gRPC status code so that a denied
// argument and an internal fault are told apart. exporter may be nil.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		observe(collector, exporter, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

func observe(collector *Collector, exporter *PrometheusExporter, method string, elapsed time.Duration, err error) {
	seconds := elapsed.Seconds()
	collector.RecordRequest(method)
	collector.RecordDuration(method, seconds)
	if exporter != nil {
		exporter.RecordRequest(method)
		exporter.RecordDuration(method, seconds)
	}
	if err == nil {
		return
	}

	code := status.Code(err).String()
	collector.RecordError(method, code)
	if exporter != nil {
		exporter.RecordError(method, code)
	}
}
