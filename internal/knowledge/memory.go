package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryDocumentStore is a map-backed DocumentStore for tests and local
// development.
type InMemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]domain.KnowledgeDocument
}

// NewInMemoryDocumentStore creates an empty InMemoryDocumentStore.
func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{docs: make(map[uuid.UUID]domain.KnowledgeDocument)}
}

func (s *InMemoryDocumentStore) Create(_ context.Context, doc *domain.KnowledgeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *InMemoryDocumentStore) Get(_ context.Context, userID, id uuid.UUID) (*domain.KnowledgeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok || (userID != uuid.Nil && doc.UserID != userID) {
		return nil, ErrNotFound
	}
	cp := doc
	return &cp, nil
}

func (s *InMemoryDocumentStore) List(_ context.Context, userID uuid.UUID, offset, limit int) ([]domain.KnowledgeDocument, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.KnowledgeDocument
	for _, doc := range s.docs {
		if userID == uuid.Nil || doc.UserID == userID {
			all = append(all, doc)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *InMemoryDocumentStore) Update(_ context.Context, doc *domain.KnowledgeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return ErrNotFound
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *InMemoryDocumentStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || (userID != uuid.Nil && doc.UserID != userID) {
		return ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// InMemoryChunkStore is a map-backed ChunkStore computing cosine similarity
// in process. The postgres implementation pushes the same ordering down to
// pgvector.
type InMemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID]domain.KnowledgeChunk
	owners map[uuid.UUID]uuid.UUID // document id -> user id
}

// NewInMemoryChunkStore creates an empty InMemoryChunkStore.
func NewInMemoryChunkStore() *InMemoryChunkStore {
	return &InMemoryChunkStore{
		chunks: make(map[uuid.UUID]domain.KnowledgeChunk),
		owners: make(map[uuid.UUID]uuid.UUID),
	}
}

// SetOwner records which user owns a document, used to scope Search.
func (s *InMemoryChunkStore) SetOwner(documentID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[documentID] = userID
}

func (s *InMemoryChunkStore) CreateBatch(_ context.Context, chunks []domain.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *InMemoryChunkStore) ListByDocument(_ context.Context, documentID uuid.UUID) ([]domain.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.KnowledgeChunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *InMemoryChunkStore) Search(_ context.Context, userID uuid.UUID, embedding []float32, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, c := range s.chunks {
		if userID != uuid.Nil {
			if owner, ok := s.owners[c.DocumentID]; ok && owner != userID {
				continue
			}
		}
		results = append(results, SearchResult{
			Chunk:      c,
			Similarity: CosineSimilarity(embedding, c.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (s *InMemoryChunkStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	delete(s.owners, documentID)
	return nil
}

// InMemoryQueryStore is a slice-backed QueryStore for tests.
type InMemoryQueryStore struct {
	mu      sync.Mutex
	queries []domain.KnowledgeQuery
}

// NewInMemoryQueryStore creates an empty InMemoryQueryStore.
func NewInMemoryQueryStore() *InMemoryQueryStore {
	return &InMemoryQueryStore{}
}

func (s *InMemoryQueryStore) Record(_ context.Context, q *domain.KnowledgeQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, *q)
	return nil
}

// All returns every recorded query, oldest first.
func (s *InMemoryQueryStore) All() []domain.KnowledgeQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.KnowledgeQuery, len(s.queries))
	copy(out, s.queries)
	return out
}

func (s *InMemoryQueryStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queries[:0]
	var removed int64
	for _, q := range s.queries {
		if q.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, q)
	}
	s.queries = kept
	return removed, nil
}

// InMemoryRelationshipStore is a map-backed RelationshipStore for tests.
type InMemoryRelationshipStore struct {
	mu   sync.Mutex
	rels map[uuid.UUID]domain.KnowledgeRelationship
}

// NewInMemoryRelationshipStore creates an empty InMemoryRelationshipStore.
func NewInMemoryRelationshipStore() *InMemoryRelationshipStore {
	return &InMemoryRelationshipStore{rels: make(map[uuid.UUID]domain.KnowledgeRelationship)}
}

func (s *InMemoryRelationshipStore) Create(_ context.Context, rel *domain.KnowledgeRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[rel.ID] = *rel
	return nil
}

func (s *InMemoryRelationshipStore) ListForDocument(_ context.Context, docID uuid.UUID) ([]domain.KnowledgeRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.KnowledgeRelationship
	for _, rel := range s.rels {
		if rel.SourceDocID == docID || rel.TargetDocID == docID {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryRelationshipStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rels[id]; !ok {
		return ErrNotFound
	}
	delete(s.rels, id)
	return nil
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for mismatched or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time checks.
var (
	_ DocumentStore     = (*InMemoryDocumentStore)(nil)
	_ ChunkStore        = (*InMemoryChunkStore)(nil)
	_ QueryStore        = (*InMemoryQueryStore)(nil)
	_ RelationshipStore = (*InMemoryRelationshipStore)(nil)
)
