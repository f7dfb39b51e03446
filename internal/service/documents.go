package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var docTracer = otel.Tracer("service/documents")

// DocumentUpload is the input accepted by AddDocument. Body may be nil
// when only metadata is recorded.
type DocumentUpload struct {
	CoacheeID   *int
	Name        string
	Category    string
	FileName    string
	Size        int64
	ContentType string
	Shared      bool
	Description string
	Body        io.Reader
}

// DocumentService manages document metadata in the store and file bodies
// in blob storage.
type DocumentService struct {
	store  *Store
	blob   port.BlobStorage
	urlTTL time.Duration
	logger *zap.Logger
}

// NewDocumentService creates a document service. blob may be nil; then
// only metadata is kept.
func NewDocumentService(store *Store, blob port.BlobStorage, logger *zap.Logger) *DocumentService {
	return &DocumentService{store: store, blob: blob, urlTTL: 15 * time.Minute, logger: logger}
}

// ListDocuments merges the central collections with the legacy lists
// embedded in coachee records. Central records win on duplicate ids.
func (s *DocumentService) ListDocuments(ctx context.Context, f domain.DocumentFilter) []domain.Document {
	_, span := docTracer.Start(ctx, "DocumentService.ListDocuments")
	defer span.End()

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return s.store.documentsLocked(f)
}

// AddDocument stores the file body (when blob storage is configured) and
// then the metadata. A failed metadata write removes the stored body.
func (s *DocumentService) AddDocument(ctx context.Context, in DocumentUpload) (*domain.Document, error) {
	ctx, span := docTracer.Start(ctx, "DocumentService.AddDocument")
	defer span.End()
	defer s.store.observe("add_document", time.Now())

	if in.FileName == "" && in.Name == "" {
		return nil, &domain.ErrValidation{Field: "fileName", Message: "required"}
	}
	if in.Size < 0 {
		return nil, &domain.ErrValidation{Field: "size", Message: "must not be negative"}
	}

	d := domain.Document{
		ID:          uuid.NewString(),
		CoacheeID:   in.CoacheeID,
		Name:        in.Name,
		Category:    in.Category,
		FileName:    in.FileName,
		Size:        in.Size,
		FileType:    domain.InferFileType(in.FileName),
		ContentType: in.ContentType,
		Shared:      in.Shared,
		Description: in.Description,
		UploadedAt:  s.store.now(),
	}
	if d.Name == "" {
		d.Name = in.FileName
	}
	if d.Category == "" {
		d.Category = "Other"
	}

	if in.CoacheeID != nil {
		s.store.mu.RLock()
		known := s.store.coacheeIndex(*in.CoacheeID) >= 0
		s.store.mu.RUnlock()
		if !known {
			return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(*in.CoacheeID)}
		}
	}

	if s.blob != nil && in.Body != nil {
		d.StorageKey = storageKey(d)
		if err := s.blob.Put(ctx, d.StorageKey, in.Body, in.Size, in.ContentType); err != nil {
			s.store.notify(domain.NotifyError, "Upload failed", d.Name)
			return nil, err
		}
	}

	if err := s.store.insertDocument(ctx, d); err != nil {
		if d.StorageKey != "" {
			if derr := s.blob.Delete(ctx, d.StorageKey); derr != nil {
				s.logger.Warn("orphaned document blob", zap.String("key", d.StorageKey), zap.Error(derr))
			}
		}
		return nil, s.store.failed("add document", err)
	}

	span.SetAttributes(attribute.String("document.id", d.ID))
	s.store.notify(domain.NotifySuccess, "Document added", d.Name)
	return &d, nil
}

func storageKey(d domain.Document) string {
	owner := "general"
	if d.CoacheeID != nil {
		owner = "coachee-" + strconv.Itoa(*d.CoacheeID)
	}
	return path.Join("documents", owner, d.ID, path.Base(d.FileName))
}

// UpdateDocument replaces editable metadata. Storage fields are kept. A
// record found only in a legacy coachee list is moved to the central
// collection.
func (s *DocumentService) UpdateDocument(ctx context.Context, in domain.Document) (*domain.Document, error) {
	ctx, span := docTracer.Start(ctx, "DocumentService.UpdateDocument")
	defer span.End()

	d, err := s.store.updateDocument(ctx, in)
	if err != nil {
		return nil, s.store.failed("update document", err)
	}
	s.store.notify(domain.NotifySuccess, "Document updated", d.Name)
	return d, nil
}

// DeleteDocument removes the metadata everywhere it is referenced and
// then the stored body.
func (s *DocumentService) DeleteDocument(ctx context.Context, id string) error {
	ctx, span := docTracer.Start(ctx, "DocumentService.DeleteDocument")
	defer span.End()

	d, err := s.store.deleteDocument(ctx, id)
	if err != nil {
		return s.store.failed("delete document", err)
	}
	if s.blob != nil && d.StorageKey != "" {
		if err := s.blob.Delete(ctx, d.StorageKey); err != nil {
			s.logger.Warn("document blob not deleted", zap.String("key", d.StorageKey), zap.Error(err))
		}
	}
	s.store.notify(domain.NotifyInfo, "Document deleted", d.Name)
	return nil
}

// DocumentDownloadURL returns a short-lived URL for the stored body.
func (s *DocumentService) DocumentDownloadURL(ctx context.Context, id string) (string, error) {
	ctx, span := docTracer.Start(ctx, "DocumentService.DocumentDownloadURL")
	defer span.End()

	s.store.mu.RLock()
	d, ok := s.store.findDocumentLocked(id)
	s.store.mu.RUnlock()
	if !ok {
		return "", &domain.ErrNotFound{Resource: "document", ID: id}
	}
	if s.blob == nil || d.StorageKey == "" {
		return "", &domain.ErrNotFound{Resource: "document file", ID: id}
	}
	return s.blob.PresignedURL(ctx, d.StorageKey, s.urlTTL)
}

// ============================================================
// Store primitives
// ============================================================

// documentsLocked lists documents matching f, newest first. Callers hold
// s.mu.
func (s *Store) documentsLocked(f domain.DocumentFilter) []domain.Document {
	seen := map[string]bool{}
	all := make([]domain.Document, 0, len(s.generalDocuments)+len(s.coachingDocuments))
	add := func(d domain.Document) {
		if seen[d.ID] {
			return
		}
		seen[d.ID] = true
		all = append(all, d)
	}
	for _, d := range s.coachingDocuments {
		add(d)
	}
	for _, d := range s.generalDocuments {
		add(d)
	}
	for _, c := range s.coachees {
		for _, d := range c.Documents {
			if d.CoacheeID == nil {
				d.CoacheeID = intPtr(c.ID)
			}
			add(d)
		}
	}

	out := []domain.Document{}
	for _, d := range all {
		if f.CoacheeID != nil && !sameInt(d.CoacheeID, *f.CoacheeID) {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.SharedOnly && !d.Shared {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

func (s *Store) findDocumentLocked(id string) (domain.Document, bool) {
	for _, d := range s.documentsLocked(domain.DocumentFilter{}) {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Document{}, false
}

// documentRepo picks the collection a document belongs to.
func (s *Store) documentRepo(d domain.Document) (port.Repository[[]domain.Document], *[]domain.Document) {
	if d.CoacheeID != nil {
		return s.repos.CoachingDocuments, &s.coachingDocuments
	}
	return s.repos.GeneralDocuments, &s.generalDocuments
}

func (s *Store) insertDocument(ctx context.Context, d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, cur := s.documentRepo(d)
	next := append(slices.Clone(*cur), d)
	if err := repo.Save(ctx, next); err != nil {
		return err
	}
	*cur = next
	return nil
}

func documentIndex(docs []domain.Document, id string) int {
	return indexByID(docs, id, func(d *domain.Document) string { return d.ID })
}

func (s *Store) updateDocument(ctx context.Context, in domain.Document) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.findDocumentLocked(in.ID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "document", ID: in.ID}
	}
	if in.CoacheeID != nil && s.coacheeIndex(*in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(*in.CoacheeID)}
	}

	d := prev
	d.CoacheeID = in.CoacheeID
	d.Name = in.Name
	d.Category = in.Category
	d.Shared = in.Shared
	d.Description = in.Description
	if d.Name == "" {
		d.Name = prev.Name
	}

	if err := s.removeDocumentLocked(ctx, in.ID); err != nil {
		return nil, err
	}
	repo, cur := s.documentRepo(d)
	next := append(slices.Clone(*cur), d)
	if err := repo.Save(ctx, next); err != nil {
		s.logger.Error("document lost between collections, restoring previous record",
			zap.String("document_id", d.ID), zap.Error(err))
		s.restoreDocumentLocked(ctx, prev)
		return nil, err
	}
	*cur = next
	return &d, nil
}

func (s *Store) deleteDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.findDocumentLocked(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "document", ID: id}
	}
	if err := s.removeDocumentLocked(ctx, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// removeDocumentLocked deletes id from both central collections and every
// legacy coachee list that holds it.
func (s *Store) removeDocumentLocked(ctx context.Context, id string) error {
	for _, c := range []struct {
		repo port.Repository[[]domain.Document]
		cur  *[]domain.Document
	}{
		{s.repos.CoachingDocuments, &s.coachingDocuments},
		{s.repos.GeneralDocuments, &s.generalDocuments},
	} {
		idx := documentIndex(*c.cur, id)
		if idx < 0 {
			continue
		}
		next := slices.Delete(slices.Clone(*c.cur), idx, idx+1)
		if err := c.repo.Save(ctx, next); err != nil {
			return err
		}
		*c.cur = next
	}

	for i := range s.coachees {
		if documentIndex(s.coachees[i].Documents, id) < 0 {
			continue
		}
		_, err := s.mutateCoachee(ctx, i, func(c *domain.Coachee) error {
			c.Documents = slices.DeleteFunc(c.Documents, func(d domain.Document) bool { return d.ID == id })
			c.AuditLog = append(c.AuditLog, domain.AuditEntry{At: s.now(), Action: "document_removed", Detail: id})
			return nil
		})
		if err != nil {
			return fmt.Errorf("update legacy documents of coachee %d: %w", s.coachees[i].ID, err)
		}
	}
	return nil
}

func (s *Store) restoreDocumentLocked(ctx context.Context, d domain.Document) {
	repo, cur := s.documentRepo(d)
	next := append(slices.Clone(*cur), d)
	if err := repo.Save(ctx, next); err != nil {
		s.logger.Error("document could not be restored", zap.String("document_id", d.ID), zap.Error(err))
		return
	}
	*cur = next
}
