package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ErrDirNotAllowed is returned when a sync names a directory outside the
// configured knowledge dirs.
var ErrDirNotAllowed = errors.New("directory is outside the configured knowledge dirs")

// SyncResult reports what happened during a knowledge sync.
type SyncResult struct {
	Found  int  `json:"found"`
	Stored int  `json:"stored"`
	Errors int  `json:"errors"`
	Mock   bool `json:"mock,omitempty"`
}

// SyncService scans seed directories and ingests every document found.
type SyncService struct {
	ingester *Ingester
	dirs     []string
	logger   *slog.Logger
}

func NewSyncService(ingester *Ingester, dirs []string, logger *slog.Logger) *SyncService {
	return &SyncService{
		ingester: ingester,
		dirs:     dirs,
		logger:   logger,
	}
}

// Sync ingests the configured directories. Document ids are derived from
// file names, so running it again overwrites rather than duplicates.
func (s *SyncService) Sync(ctx context.Context) (*SyncResult, error) {
	return s.sync(ctx, s.dirs)
}

// SyncDirs runs sync for specific directories (used by API override).
// Each one must be a configured dir or sit inside one.
func (s *SyncService) SyncDirs(ctx context.Context, dirs []string) (*SyncResult, error) {
	for _, dir := range dirs {
		if err := s.checkDir(dir); err != nil {
			return nil, err
		}
	}
	return s.sync(ctx, dirs)
}

func (s *SyncService) checkDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	for _, root := range s.dirs {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDirNotAllowed, dir)
}

func (s *SyncService) sync(ctx context.Context, dirs []string) (*SyncResult, error) {
	docs, err := ScanDirs(dirs)
	if err != nil {
		return nil, fmt.Errorf("scan knowledge: %w", err)
	}

	result := &SyncResult{Found: len(docs), Mock: s.ingester.Mock()}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.ingester.IngestDocument(ctx, doc); err != nil {
			s.logger.Error("failed to ingest document",
				"filename", doc.Filename,
				"id", doc.ID,
				"error", err,
			)
			result.Errors++
			continue
		}
		result.Stored++
	}

	s.logger.Info("knowledge sync complete",
		"found", result.Found,
		"stored", result.Stored,
		"errors", result.Errors,
	)
	return result, nil
}

// ListSources returns the currently scannable documents (without syncing).
func (s *SyncService) ListSources() ([]SourceInfo, error) {
	docs, err := ScanDirs(s.dirs)
	if err != nil {
		return nil, err
	}
	out := make([]SourceInfo, 0, len(docs))
	for _, d := range docs {
		id := d.ID
		if id == "" {
			id = d.Filename
		}
		out = append(out, SourceInfo{ID: id, Filename: d.Filename, Source: d.Source, Size: len(d.Content)})
	}
	return out, nil
}

// SourceInfo describes a document found on disk.
type SourceInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Source   string `json:"source"`
	Size     int    `json:"size"`
}
