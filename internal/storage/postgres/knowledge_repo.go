package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/knowledge"
)

type documentRepo struct {
	db *gorm.DB
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.KnowledgeDocument) error {
	m := toDocumentModel(doc)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

func (r *documentRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.KnowledgeDocument, error) {
	var m KnowledgeDocumentModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	return toDocumentDomain(&m), nil
}

func (r *documentRepo) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.KnowledgeDocument, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&KnowledgeDocumentModel{}).
		Scopes(UserScope(userID)).Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	var models []KnowledgeDocumentModel
	q := r.db.WithContext(ctx).Scopes(UserScope(userID)).
		Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}

	docs := make([]domain.KnowledgeDocument, 0, len(models))
	for i := range models {
		docs = append(docs, *toDocumentDomain(&models[i]))
	}
	return docs, total, nil
}

func (r *documentRepo) Update(ctx context.Context, doc *domain.KnowledgeDocument) error {
	m := toDocumentModel(doc)
	res := r.db.WithContext(ctx).Model(&KnowledgeDocumentModel{}).
		Scopes(UserScope(doc.UserID)).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"title":        m.Title,
			"source_type":  m.SourceType,
			"source_ref":   m.SourceRef,
			"content_hash": m.ContentHash,
			"chunk_count":  m.ChunkCount,
		})
	if res.Error != nil {
		return fmt.Errorf("updating document %s: %w", doc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return knowledge.ErrNotFound
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Scopes(UserScope(userID)).Delete(&KnowledgeDocumentModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return knowledge.ErrNotFound
		}
		if err := tx.Delete(&KnowledgeChunkModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&KnowledgeRelationshipModel{},
			"source_doc_id = ? OR target_doc_id = ?", id, id).Error
	})
	if errors.Is(err, knowledge.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

type chunkRepo struct {
	db *gorm.DB
}

func (r *chunkRepo) CreateBatch(ctx context.Context, chunks []domain.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]KnowledgeChunkModel, 0, len(chunks))
	for i := range chunks {
		models = append(models, toChunkModel(&chunks[i]))
	}
	if err := r.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return fmt.Errorf("creating chunks: %w", err)
	}
	return nil
}

func (r *chunkRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.KnowledgeChunk, error) {
	var models []KnowledgeChunkModel
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	chunks := make([]domain.KnowledgeChunk, 0, len(models))
	for i := range models {
		chunks = append(chunks, toChunkDomain(&models[i]))
	}
	return chunks, nil
}

// chunkSearchRow carries the pgvector distance alongside the chunk columns.
type chunkSearchRow struct {
	KnowledgeChunkModel
	Distance float64
}

// Search runs a cosine nearest-neighbour query restricted to the user's
// documents. pgvector's <=> operator returns cosine distance; similarity is
// 1 - distance.
func (r *chunkRepo) Search(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]knowledge.SearchResult, error) {
	vec := pgvector.NewVector(embedding)

	var rows []chunkSearchRow
	err := r.db.WithContext(ctx).
		Table("knowledge_chunks").
		Select("knowledge_chunks.*, knowledge_chunks.embedding <=> ? AS distance", vec).
		Joins("JOIN knowledge_documents ON knowledge_documents.id = knowledge_chunks.document_id").
		Where("knowledge_documents.user_id = ? AND knowledge_documents.deleted_at IS NULL", userID).
		Order("distance ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	results := make([]knowledge.SearchResult, 0, len(rows))
	for i := range rows {
		results = append(results, knowledge.SearchResult{
			Chunk:      toChunkDomain(&rows[i].KnowledgeChunkModel),
			Similarity: 1 - rows[i].Distance,
		})
	}
	return results, nil
}

func (r *chunkRepo) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&KnowledgeChunkModel{}, "document_id = ?", documentID).Error
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

type queryRepo struct {
	db *gorm.DB
}

func (r *queryRepo) Record(ctx context.Context, q *domain.KnowledgeQuery) error {
	m := toQueryModel(q)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("recording knowledge query: %w", err)
	}
	return nil
}

func (r *queryRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&KnowledgeQueryModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleaning up knowledge queries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type relationshipRepo struct {
	db *gorm.DB
}

func (r *relationshipRepo) Create(ctx context.Context, rel *domain.KnowledgeRelationship) error {
	m := toRelationshipModel(rel)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating relationship: %w", err)
	}
	return nil
}

func (r *relationshipRepo) ListForDocument(ctx context.Context, docID uuid.UUID) ([]domain.KnowledgeRelationship, error) {
	var models []KnowledgeRelationshipModel
	err := r.db.WithContext(ctx).
		Where("source_doc_id = ? OR target_doc_id = ?", docID, docID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	rels := make([]domain.KnowledgeRelationship, 0, len(models))
	for i := range models {
		rels = append(rels, toRelationshipDomain(&models[i]))
	}
	return rels, nil
}

func (r *relationshipRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&KnowledgeRelationshipModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting relationship %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return knowledge.ErrNotFound
	}
	return nil
}
