package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/tenantflow/pkg/definitions"
	"github.com/dukex/tenantflow/pkg/integration"
	"github.com/dukex/tenantflow/pkg/otelhelper"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// NewDefinitionProvider reads definitions from the workflow registry when
// registryURL is set and from the local store otherwise. A Redis URL adds a
// read-through cache in front of either.
func NewDefinitionProvider(
	logger *slog.Logger,
	store persistence.Persistence,
	registryURL, redisURL string,
	cacheTTL time.Duration,
) (definitions.Provider, error) {
	var provider definitions.Provider = definitions.NewRepositoryProvider(store.DefinitionRepository())

	if registryURL != "" {
		provider = definitions.NewHTTPProvider(logger, registryURL)
	}

	if redisURL == "" {
		return provider, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return definitions.NewCachedProvider(logger, provider, redis.NewClient(options), cacheTTL), nil
}

func NewGateway(logger *slog.Logger, integrationURL string) *integration.HTTPGateway {
	return integration.NewHTTPGateway(logger, integrationURL)
}

// NewNotifier posts notifications to the notification service when its URL
// is set and only logs them otherwise.
func NewNotifier(logger *slog.Logger, notificationURL string) integration.Notifier {
	if notificationURL == "" {
		return integration.NewLogNotifier(logger)
	}

	return integration.NewHTTPNotifier(integration.NewHTTPGateway(logger, notificationURL))
}

func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
