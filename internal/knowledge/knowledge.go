// Package knowledge implements the retrieval store: documents split into
// embedded chunks, similarity search, query logging, and pairwise document
// relationships.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// EmbeddingDim is the dimensionality of chunk embeddings.
const EmbeddingDim = 1536

// ErrNotFound is returned when a document, chunk, or relationship does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadEmbedding is returned for embeddings of the wrong dimensionality.
var ErrBadEmbedding = errors.New("embedding dimension mismatch")

// DocumentStore is the persistence interface for knowledge documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.KnowledgeDocument) error
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.KnowledgeDocument, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.KnowledgeDocument, int64, error)
	Update(ctx context.Context, doc *domain.KnowledgeDocument) error
	// Delete removes the document and cascades to its chunks and relationships.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ChunkStore persists embedded chunks and answers similarity queries.
type ChunkStore interface {
	CreateBatch(ctx context.Context, chunks []domain.KnowledgeChunk) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.KnowledgeChunk, error)
	// Search returns the limit nearest chunks to the embedding by cosine
	// distance, restricted to the user's documents, most similar first.
	Search(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// QueryStore logs retrievals for analytics and cleanup.
type QueryStore interface {
	Record(ctx context.Context, q *domain.KnowledgeQuery) error
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// RelationshipStore persists pairwise document links.
type RelationshipStore interface {
	Create(ctx context.Context, rel *domain.KnowledgeRelationship) error
	ListForDocument(ctx context.Context, docID uuid.UUID) ([]domain.KnowledgeRelationship, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SearchResult pairs a chunk with its similarity to the query embedding.
type SearchResult struct {
	Chunk      domain.KnowledgeChunk
	Similarity float64 // Cosine similarity in [-1, 1].
}

// Embedder turns text into a fixed-size embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service coordinates document ingestion and retrieval.
type Service struct {
	documents     DocumentStore
	chunks        ChunkStore
	queries       QueryStore
	relationships RelationshipStore
	embedder      Embedder
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a Service.
func NewService(
	documents DocumentStore,
	chunks ChunkStore,
	queries QueryStore,
	relationships RelationshipStore,
	embedder Embedder,
	logger *slog.Logger,
) *Service {
	return &Service{
		documents:     documents,
		chunks:        chunks,
		queries:       queries,
		relationships: relationships,
		embedder:      embedder,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Ingest stores a document and its chunk contents, embedding each chunk.
func (s *Service) Ingest(ctx context.Context, doc *domain.KnowledgeDocument, contents []string) error {
	now := s.now()
	doc.ChunkCount = len(contents)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if err := s.documents.Create(ctx, doc); err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	chunks := make([]domain.KnowledgeChunk, 0, len(contents))
	for i, content := range contents {
		emb, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		if len(emb) != EmbeddingDim {
			return fmt.Errorf("%w: got %d, want %d", ErrBadEmbedding, len(emb), EmbeddingDim)
		}
		chunks = append(chunks, domain.KnowledgeChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  emb,
			TokenCount: estimateTokens(content),
			CreatedAt:  now,
		})
	}
	if err := s.chunks.CreateBatch(ctx, chunks); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.InfoContext(ctx, "document ingested",
		slog.String("document_id", doc.ID.String()),
		slog.Int("chunks", len(chunks)),
	)
	return nil
}

// Search embeds the query, returns the most similar chunks for the user, and
// logs the retrieval.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	started := s.now()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := s.chunks.Search(ctx, userID, emb, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	q := &domain.KnowledgeQuery{
		ID:          uuid.New(),
		UserID:      userID,
		QueryText:   query,
		ResultCount: len(results),
		LatencyMS:   s.now().Sub(started).Milliseconds(),
		CreatedAt:   started,
	}
	if recErr := s.queries.Record(ctx, q); recErr != nil {
		s.logger.ErrorContext(ctx, "recording knowledge query failed",
			slog.String("error", recErr.Error()),
		)
	}
	return results, nil
}

// Relate links two documents. Weight defaults to 1.0 when unset.
func (s *Service) Relate(ctx context.Context, sourceID, targetID uuid.UUID, relationType string, weight float64) (*domain.KnowledgeRelationship, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("a document cannot relate to itself")
	}
	if weight == 0 {
		weight = 1.0
	}
	rel := &domain.KnowledgeRelationship{
		ID:           uuid.New(),
		SourceDocID:  sourceID,
		TargetDocID:  targetID,
		RelationType: relationType,
		Weight:       weight,
		CreatedAt:    s.now(),
	}
	if err := s.relationships.Create(ctx, rel); err != nil {
		return nil, fmt.Errorf("creating relationship: %w", err)
	}
	return rel, nil
}

// Remove deletes a document together with its chunks.
func (s *Service) Remove(ctx context.Context, userID, docID uuid.UUID) error {
	if err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := s.documents.Delete(ctx, userID, docID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// estimateTokens approximates token count as words * 4/3.
func estimateTokens(content string) int {
	words := 0
	inWord := false
	for _, r := range content {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return words * 4 / 3
}
