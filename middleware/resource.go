package middleware

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/duynhne/campus-portal/config"
)

// detectNamespace returns the deployment namespace: service.namespace from
// OTEL_RESOURCE_ATTRIBUTES, then POD_NAMESPACE, then the service environment.
func detectNamespace(svc config.ServiceConfig) string {
	if attrs := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); attrs != "" {
		for _, attr := range strings.Split(attrs, ",") {
			if k, v, ok := strings.Cut(attr, "="); ok && k == "service.namespace" {
				return v
			}
		}
	}
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}
	return svc.Env
}

// CreateResource describes this process for tracing and profiling backends.
func CreateResource(ctx context.Context, svc config.ServiceConfig) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(svc.Name),
			semconv.ServiceVersionKey.String(svc.Version),
			semconv.ServiceNamespaceKey.String(detectNamespace(svc)),
			semconv.DeploymentEnvironmentKey.String(svc.Env),
		),
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(svc.Name),
			semconv.ServiceNamespaceKey.String(detectNamespace(svc)),
		), fmt.Errorf("resource detection partial failure (using fallback): %w", err)
	}
	return res, nil
}
