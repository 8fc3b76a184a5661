package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
)

type fakeElastic struct {
	mu       sync.Mutex
	status   int
	requests []string // "METHOD path"
}

func (f *fakeElastic) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		status := f.status
		f.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	})
}

func newElasticRegistry(t *testing.T, status int) (*ElasticRegistry, *fakeElastic) {
	t.Helper()

	fake := &fakeElastic{status: status}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	reg := NewElasticRegistry(client, &countingRelations{}, 0, logger.NewNop())
	return reg, fake
}

func TestElasticUpsertSuccess(t *testing.T) {
	reg, fake := newElasticRegistry(t, http.StatusOK)

	err := reg.Upsert(context.Background(),
		change.Identity{Index: "articles", RecordID: "1"},
		map[string]interface{}{"title": "hello"})
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "PUT /articles/_doc/1", fake.requests[0])
}

func TestElasticDeleteMissingDocumentIsSuccess(t *testing.T) {
	reg, _ := newElasticRegistry(t, http.StatusNotFound)

	err := reg.Delete(context.Background(), change.Identity{Index: "articles", RecordID: "1"})
	assert.NoError(t, err)
}

func TestElasticServerErrorIsTransient(t *testing.T) {
	reg, _ := newElasticRegistry(t, http.StatusServiceUnavailable)

	err := reg.Upsert(context.Background(),
		change.Identity{Index: "articles", RecordID: "1"},
		map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, change.IsTransient(err))
}

func TestElasticBadRequestIsPermanent(t *testing.T) {
	reg, _ := newElasticRegistry(t, http.StatusBadRequest)

	err := reg.Upsert(context.Background(),
		change.Identity{Index: "articles", RecordID: "1"},
		map[string]interface{}{})
	require.Error(t, err)
	assert.False(t, change.IsTransient(err))
}

func TestEnsureIndicesCreatesEach(t *testing.T) {
	reg, fake := newElasticRegistry(t, http.StatusOK)

	schema := NewSchema(
		&IndexDef{Name: "articles", Table: "articles", Mapping: DefaultMapping},
		&IndexDef{Name: "authors", Table: "authors", Mapping: DefaultMapping},
	)
	require.NoError(t, reg.EnsureIndices(context.Background(), schema))

	require.Len(t, fake.requests, 2)
	assert.Equal(t, "PUT /articles", fake.requests[0])
	assert.Equal(t, "PUT /authors", fake.requests[1])
}
