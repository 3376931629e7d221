package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = 5 * time.Minute

// CachedProvider is a read-through Redis cache in front of another provider.
// Only successful lookups are cached; cache failures fall back to the source.
type CachedProvider struct {
	source Provider
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(logger *slog.Logger, source Provider, client redis.UniversalClient, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedProvider{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "definition_cache"),
	}
}

func cacheKey(workflowID, tenantID string) string {
	return "tenantflow:definition:" + tenantID + ":" + workflowID
}

func (p *CachedProvider) GetDefinition(ctx context.Context, workflowID, tenantID string) (*models.WorkflowDefinition, error) {
	key := cacheKey(workflowID, tenantID)

	cached, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var definition models.WorkflowDefinition
		if err := json.Unmarshal(cached, &definition); err == nil {
			return &definition, nil
		}

		p.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		p.logger.WarnContext(ctx, "definition cache unavailable", "error", err)
	}

	definition, err := p.source.GetDefinition(ctx, workflowID, tenantID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(definition)
	if err == nil {
		err = p.client.Set(ctx, key, payload, p.ttl).Err()
	}

	if err != nil {
		p.logger.WarnContext(ctx, "failed to cache definition", "key", key, "error", err)
	}

	return definition, nil
}

// Invalidate drops the cached copy so the next lookup reaches the source.
func (p *CachedProvider) Invalidate(ctx context.Context, workflowID, tenantID string) error {
	return p.client.Del(ctx, cacheKey(workflowID, tenantID)).Err()
}
