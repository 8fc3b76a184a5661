package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/resilience"
)

// ElasticRegistry implements Registry against Elasticsearch. Writes pass
// through a token-bucket rate limiter and a circuit breaker; failures are
// classified so the synchronizer knows what to retry.
type ElasticRegistry struct {
	client    *elasticsearch.Client
	relations RelationSource
	breaker   *resilience.CircuitBreaker
	limiter   *rate.Limiter
	logger    logger.Logger
}

func NewElasticRegistry(client *elasticsearch.Client, relations RelationSource, rps int, log logger.Logger) *ElasticRegistry {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &ElasticRegistry{
		client:    client,
		relations: relations,
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("elasticsearch")),
		limiter:   rate.NewLimiter(limit, max(rps, 1)),
		logger:    log,
	}
}

// EnsureIndices creates every index in the schema with its mapping. An index
// that already exists is left untouched.
func (r *ElasticRegistry) EnsureIndices(ctx context.Context, schema *Schema) error {
	for _, def := range schema.All() {
		req := esapi.IndicesCreateRequest{
			Index: def.Name,
			Body:  strings.NewReader(def.Mapping),
		}

		res, err := req.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
		res.Body.Close()

		// 400 means the index already exists.
		if res.IsError() && res.StatusCode != 400 {
			return fmt.Errorf("create index %s: %s", def.Name, res.Status())
		}
	}
	return nil
}

func (r *ElasticRegistry) Upsert(ctx context.Context, identity change.Identity, doc map[string]interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return change.Permanent(fmt.Errorf("encode document %s: %w", identity, err))
	}

	return r.call(ctx, func() error {
		req := esapi.IndexRequest{
			Index:      identity.Index,
			DocumentID: identity.RecordID,
			Body:       bytes.NewReader(body),
		}

		res, err := req.Do(ctx, r.client)
		if err != nil {
			return change.Transient(fmt.Errorf("upsert %s: %w", identity, err))
		}
		defer res.Body.Close()

		return r.classify(res, "upsert", identity)
	})
}

func (r *ElasticRegistry) Delete(ctx context.Context, identity change.Identity) error {
	return r.call(ctx, func() error {
		req := esapi.DeleteRequest{
			Index:      identity.Index,
			DocumentID: identity.RecordID,
		}

		res, err := req.Do(ctx, r.client)
		if err != nil {
			return change.Transient(fmt.Errorf("delete %s: %w", identity, err))
		}
		defer res.Body.Close()

		// The document may never have been indexed; a missing document is
		// the desired end state.
		if res.StatusCode == 404 {
			return nil
		}

		return r.classify(res, "delete", identity)
	})
}

func (r *ElasticRegistry) RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error) {
	return r.relations.RelatedIDsOf(ctx, identity)
}

func (r *ElasticRegistry) call(ctx context.Context, fn func() error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return change.Transient(err)
	}

	err := r.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// The backend is already struggling; let the retry loop back off.
		return change.Transient(err)
	}
	return err
}

func (r *ElasticRegistry) classify(res *esapi.Response, op string, identity change.Identity) error {
	if !res.IsError() {
		return nil
	}
	if change.RetryableStatus(res.StatusCode) {
		return change.Transient(fmt.Errorf("%s %s: %s", op, identity, res.Status()))
	}
	return change.Permanent(fmt.Errorf("%s %s: %s", op, identity, res.Status()))
}
