package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alta-ny/chatbot/internal/embedding"
	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/privacy"
	"github.com/alta-ny/chatbot/internal/store"
	"github.com/alta-ny/chatbot/internal/vectorstore"
)

// maxStoredContent caps the chunk text kept in vector metadata.
const maxStoredContent = 1000

// ErrEmptyDocument is returned for documents with no text.
var ErrEmptyDocument = errors.New("document content is empty")

// Ingester chunks documents, embeds each chunk and writes them to the vector
// store. When either the embedder or the store is unavailable it runs in mock
// mode: nothing is embedded or stored and generated ids are returned.
type Ingester struct {
	embedder embedding.Embedder
	vectors  vectorstore.Store
	docs     *store.DocumentStore
	logger   *slog.Logger
	mock     bool
	now      func() time.Time
}

// NewIngester creates an Ingester. embedder may be nil (mock mode); docs may
// be nil when no registry is kept.
func NewIngester(embedder embedding.Embedder, vectors vectorstore.Store, docs *store.DocumentStore, logger *slog.Logger) *Ingester {
	return &Ingester{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		logger:   logger,
		mock:     embedder == nil || vectors.Mock(),
		now:      time.Now,
	}
}

func (i *Ingester) Mock() bool { return i.mock }

// IngestDocument stores doc as chunks with ids "<id>-<n>". Private blocks and
// HTML comments are removed first. Re-ingesting the same id overwrites its
// chunks and removes any left over from a longer previous version.
func (i *Ingester) IngestDocument(ctx context.Context, doc models.Document) (*models.IngestResponse, error) {
	doc.Content = privacy.Redact(doc.Content)
	if doc.Content == "" {
		return nil, ErrEmptyDocument
	}
	if doc.Filename == "" {
		doc.Filename = "document"
	}
	docID := doc.ID
	if docID == "" {
		docID = doc.Filename
	}

	chunks := Chunk(doc.Content, DefaultChunkSize, DefaultChunkOverlap)

	if i.mock {
		ids := make([]string, len(chunks))
		for n := range chunks {
			ids[n] = uuid.New().String()
		}
		i.logger.Info("vector store unavailable, document accepted in mock mode", "document", docID, "chunks", len(chunks))
		return &models.IngestResponse{Success: true, DocumentID: docID, IDs: ids, Chunks: len(chunks), Mock: true}, nil
	}

	createdAt := i.now().UTC()
	records := make([]models.Record, 0, len(chunks))
	for n, chunk := range chunks {
		vec, err := i.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", n, docID, err)
		}

		meta := make(map[string]any, len(doc.Metadata)+5)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["content"] = truncateRunes(chunk, maxStoredContent)
		meta["chunkIndex"] = n
		meta["filename"] = doc.Filename
		meta["createdAt"] = createdAt.Format(time.RFC3339)
		if doc.Source != "" {
			meta["source"] = doc.Source
		}

		records = append(records, models.Record{
			ID:       fmt.Sprintf("%s-%d", docID, n),
			Vector:   vec,
			Metadata: meta,
		})
	}

	if err := i.vectors.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", docID, err)
	}

	ids := make([]string, len(records))
	for n, r := range records {
		ids[n] = r.ID
	}

	if i.docs != nil {
		i.removeStaleChunks(ctx, docID, len(ids))
		err := i.docs.Upsert(&models.DocumentRecord{
			ID:        docID,
			Filename:  doc.Filename,
			Source:    doc.Source,
			ChunkIDs:  ids,
			CreatedAt: createdAt.Unix(),
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", docID, err)
		}
	}

	i.logger.Info("document ingested", "document", docID, "chunks", len(ids))
	return &models.IngestResponse{Success: true, DocumentID: docID, IDs: ids, Chunks: len(ids)}, nil
}

// removeStaleChunks deletes chunk ids past keep from a previous version.
func (i *Ingester) removeStaleChunks(ctx context.Context, docID string, keep int) {
	prev, err := i.docs.GetByID(docID)
	if err != nil || prev == nil {
		return
	}
	for _, id := range prev.ChunkIDs[min(keep, len(prev.ChunkIDs)):] {
		if err := i.vectors.DeleteByID(ctx, id); err != nil {
			i.logger.Warn("failed to delete stale chunk", "id", id, "error", err)
		}
	}
}

// DeleteDocument removes a registered document and all its chunks. An id
// that is not in the registry is deleted as a single vector id. Deletion is
// idempotent.
func (i *Ingester) DeleteDocument(ctx context.Context, id string) (int, error) {
	if i.mock {
		return 0, nil
	}

	var rec *models.DocumentRecord
	if i.docs != nil {
		var err error
		rec, err = i.docs.GetByID(id)
		if err != nil {
			return 0, err
		}
	}
	if rec == nil {
		if err := i.vectors.DeleteByID(ctx, id); err != nil {
			return 0, fmt.Errorf("delete vector %s: %w", id, err)
		}
		return 1, nil
	}

	for _, chunkID := range rec.ChunkIDs {
		if err := i.vectors.DeleteByID(ctx, chunkID); err != nil {
			return 0, fmt.Errorf("delete chunk %s: %w", chunkID, err)
		}
	}
	if err := i.docs.Delete(id); err != nil {
		return 0, err
	}
	return len(rec.ChunkIDs), nil
}

// ListDocuments returns registered documents, newest first.
func (i *Ingester) ListDocuments(limit int) ([]*models.DocumentRecord, error) {
	if i.docs == nil {
		return []*models.DocumentRecord{}, nil
	}
	docs, err := i.docs.List(limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.DocumentRecord{}
	}
	return docs, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
