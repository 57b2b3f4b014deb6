package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/knowledge"
)

// DocumentIngestRequest is the JSON body for POST /knowledge/documents.
// Contents are pre-chunked by the caller; each entry becomes one chunk.
type DocumentIngestRequest struct {
	Title      string   `json:"title"`
	SourceType string   `json:"source_type"`
	SourceRef  string   `json:"source_ref,omitempty"`
	Contents   []string `json:"contents"`
}

// DocumentResponse is the JSON shape of a knowledge document.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	SourceRef  string    `json:"source_ref,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func documentResponse(doc *domain.KnowledgeDocument) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID.String(),
		Title:      doc.Title,
		SourceType: doc.SourceType,
		SourceRef:  doc.SourceRef,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt,
	}
}

func (g *Gateway) handleDocumentIngest(c *okapi.Context) error {
	var req DocumentIngestRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("title", req.Title); err != nil {
		return err
	}
	if len(req.Contents) == 0 {
		return apiv2.NewValidationError("contents", "at least one content chunk is required")
	}
	if err := apiv2.ValidateEnum("source_type", req.SourceType,
		"upload", "url", "chat", "integration"); err != nil {
		return err
	}

	doc := &domain.KnowledgeDocument{
		ID:         uuid.New(),
		UserID:     g.currentUser(c),
		Title:      req.Title,
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
	}
	if err := g.svc.Knowledge.Ingest(c.Context(), doc, req.Contents); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(documentResponse(doc)))
}

func (g *Gateway) handleDocumentList(c *okapi.Context) error {
	offset, limit := pageParams(c)
	docs, total, err := g.svc.Documents.List(c.Context(), g.currentUser(c), offset, limit)
	if err != nil {
		return err
	}

	out := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, documentResponse(&docs[i]))
	}
	return c.OK(g.fmt.Paginated(out, offset, limit, total))
}

func (g *Gateway) handleDocumentGet(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	doc, err := g.svc.Documents.Get(c.Context(), g.currentUser(c), id)
	if errors.Is(err, knowledge.ErrNotFound) {
		return apiv2.NewNotFoundError("document")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(documentResponse(doc)))
}

func (g *Gateway) handleDocumentDelete(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	err = g.svc.Knowledge.Remove(c.Context(), g.currentUser(c), id)
	if errors.Is(err, knowledge.ErrNotFound) {
		return apiv2.NewNotFoundError("document")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// SearchRequest is the JSON body for POST /knowledge/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchHit is one semantic search result.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

func (g *Gateway) handleKnowledgeSearch(c *okapi.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("query", req.Query); err != nil {
		return err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if err := apiv2.ValidateRange("limit", req.Limit, 1, 100); err != nil {
		return err
	}

	results, err := g.svc.Knowledge.Search(c.Context(), g.currentUser(c), req.Query, req.Limit)
	if err != nil {
		return err
	}

	out := make([]SearchHit, 0, len(results))
	for _, r := range results {
		out = append(out, SearchHit{
			DocumentID: r.Chunk.DocumentID.String(),
			ChunkIndex: r.Chunk.ChunkIndex,
			Content:    r.Chunk.Content,
			Similarity: r.Similarity,
		})
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}

// RelationshipRequest is the JSON body for POST /knowledge/relationships.
type RelationshipRequest struct {
	SourceDocID  string  `json:"source_doc_id"`
	TargetDocID  string  `json:"target_doc_id"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight"`
}

func (g *Gateway) handleRelationshipCreate(c *okapi.Context) error {
	var req RelationshipRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	sourceID, err := apiv2.ValidateUUID("source_doc_id", req.SourceDocID)
	if err != nil {
		return err
	}
	targetID, err := apiv2.ValidateUUID("target_doc_id", req.TargetDocID)
	if err != nil {
		return err
	}
	if err := apiv2.ValidateEnum("relation_type", req.RelationType,
		"references", "supersedes", "duplicates"); err != nil {
		return err
	}

	// Both endpoints must belong to the caller.
	for field, id := range map[string]uuid.UUID{
		"source_doc_id": sourceID,
		"target_doc_id": targetID,
	} {
		if _, err := g.svc.Documents.Get(c.Context(), g.currentUser(c), id); err != nil {
			if errors.Is(err, knowledge.ErrNotFound) {
				return apiv2.NewValidationError(field, "document not found")
			}
			return err
		}
	}

	rel, err := g.svc.Knowledge.Relate(c.Context(), sourceID, targetID, req.RelationType, req.Weight)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(rel))
}

func (g *Gateway) handleRelationshipList(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	// Ownership check before listing relationships for the document.
	if _, err := g.svc.Documents.Get(c.Context(), g.currentUser(c), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return apiv2.NewNotFoundError("document")
		}
		return err
	}

	rels, err := g.svc.Relationships.ListForDocument(c.Context(), id)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(rels, len(rels)))
}
