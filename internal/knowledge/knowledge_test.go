package knowledge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// wordEmbedder produces deterministic embeddings where texts sharing words
// land closer together. Good enough to exercise similarity ordering.
type wordEmbedder struct {
	dim int
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := e.dim
	if dim == 0 {
		dim = EmbeddingDim
	}
	v := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := 0
		for _, r := range word {
			h = h*31 + int(r)
		}
		v[((h%dim)+dim)%dim]++
	}
	return v, nil
}

func testService(embedder Embedder) (*Service, *InMemoryDocumentStore, *InMemoryChunkStore, *InMemoryQueryStore) {
	docs := NewInMemoryDocumentStore()
	chunks := NewInMemoryChunkStore()
	queries := NewInMemoryQueryStore()
	rels := NewInMemoryRelationshipStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(docs, chunks, queries, rels, embedder, logger), docs, chunks, queries
}

func TestIngestStoresChunks(t *testing.T) {
	ctx := context.Background()
	svc, docs, chunks, _ := testService(&wordEmbedder{})
	userID := uuid.New()

	doc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: userID, Title: "runbook", SourceType: "upload"}
	contents := []string{"restart the postgres primary", "rotate the api keys quarterly"}
	if err := svc.Ingest(ctx, doc, contents); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stored, err := docs.Get(ctx, userID, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored.ChunkCount != 2 {
		t.Errorf("chunk count = %d, want 2", stored.ChunkCount)
	}

	list, _ := chunks.ListByDocument(ctx, doc.ID)
	if len(list) != 2 {
		t.Fatalf("stored %d chunks, want 2", len(list))
	}
	for i, c := range list {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if len(c.Embedding) != EmbeddingDim {
			t.Errorf("chunk %d embedding dim = %d, want %d", i, len(c.Embedding), EmbeddingDim)
		}
		if c.TokenCount == 0 {
			t.Errorf("chunk %d token estimate is zero", i)
		}
	}
}

type badEmbedder struct{}

func (badEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, 768), nil
}

func TestIngestRejectsWrongDimension(t *testing.T) {
	svc, _, _, _ := testService(badEmbedder{})
	doc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: uuid.New()}
	err := svc.Ingest(context.Background(), doc, []string{"text"})
	if !errors.Is(err, ErrBadEmbedding) {
		t.Errorf("got %v, want ErrBadEmbedding", err)
	}
}

func TestSearchOrderingAndLogging(t *testing.T) {
	ctx := context.Background()
	svc, _, _, queries := testService(&wordEmbedder{})
	userID := uuid.New()

	doc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: userID, Title: "ops notes"}
	contents := []string{
		"tuning postgres vacuum and checkpoints",
		"kubernetes ingress annotations cheat sheet",
		"postgres replication slot monitoring",
	}
	if err := svc.Ingest(ctx, doc, contents); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	results, err := svc.Search(ctx, userID, "postgres vacuum tuning", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.Content != contents[0] {
		t.Errorf("top result = %q, want the vacuum tuning chunk", results[0].Chunk.Content)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by similarity")
	}

	logged := queries.All()
	if len(logged) != 1 {
		t.Fatalf("logged %d queries, want 1", len(logged))
	}
	if logged[0].QueryText != "postgres vacuum tuning" || logged[0].ResultCount != 2 {
		t.Errorf("query log = %q/%d", logged[0].QueryText, logged[0].ResultCount)
	}
}

func TestSearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	svc, _, chunks, _ := testService(&wordEmbedder{})
	alice, bob := uuid.New(), uuid.New()

	aliceDoc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: alice}
	bobDoc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: bob}
	chunks.SetOwner(aliceDoc.ID, alice)
	chunks.SetOwner(bobDoc.ID, bob)
	if err := svc.Ingest(ctx, aliceDoc, []string{"alice secret payroll data"}); err != nil {
		t.Fatalf("ingest alice: %v", err)
	}
	if err := svc.Ingest(ctx, bobDoc, []string{"bob secret payroll data"}); err != nil {
		t.Fatalf("ingest bob: %v", err)
	}

	results, err := svc.Search(ctx, alice, "secret payroll data", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.DocumentID == bobDoc.ID {
			t.Fatal("search leaked another user's chunk")
		}
	}
}

func TestRelate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := testService(&wordEmbedder{})
	a, b := uuid.New(), uuid.New()

	rel, err := svc.Relate(ctx, a, b, "references", 0)
	if err != nil {
		t.Fatalf("relate: %v", err)
	}
	if rel.Weight != 1.0 {
		t.Errorf("default weight = %v, want 1.0", rel.Weight)
	}

	if _, err := svc.Relate(ctx, a, a, "references", 1); err == nil {
		t.Error("self-relationship must be rejected")
	}
}

func TestRemoveCascadesToChunks(t *testing.T) {
	ctx := context.Background()
	svc, _, chunks, _ := testService(&wordEmbedder{})
	userID := uuid.New()

	doc := &domain.KnowledgeDocument{ID: uuid.New(), UserID: userID}
	if err := svc.Ingest(ctx, doc, []string{"one", "two"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := svc.Remove(ctx, userID, doc.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	left, _ := chunks.ListByDocument(ctx, doc.ID)
	if len(left) != 0 {
		t.Errorf("%d chunks left after remove", len(left))
	}
}

func TestQueryCleanup(t *testing.T) {
	ctx := context.Background()
	queries := NewInMemoryQueryStore()
	now := time.Now().UTC()

	_ = queries.Record(ctx, &domain.KnowledgeQuery{ID: uuid.New(), CreatedAt: now.Add(-40 * 24 * time.Hour)})
	_ = queries.Record(ctx, &domain.KnowledgeQuery{ID: uuid.New(), CreatedAt: now.Add(-time.Hour)})

	removed, err := queries.Cleanup(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(queries.All()) != 1 {
		t.Errorf("kept = %d, want 1", len(queries.All()))
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: %v, want 1", got)
	}
	if got := CosineSimilarity(a, []float32{0, 1, 0}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: %v, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{-1, 0, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: %v, want -1", got)
	}
	if got := CosineSimilarity(a, []float32{0, 0}); got != 0 {
		t.Errorf("mismatched dims: %v, want 0", got)
	}
}
