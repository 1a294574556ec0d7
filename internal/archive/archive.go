// Package archive persists export records and serves them back as downloads.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/export"
	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/retry"
	"github.com/pavelanni/reflector/internal/store"
)

// ErrPersistence means the export record was computed but could not be
// stored or read back.
var ErrPersistence = errors.New("archive persistence failed")

const defaultCacheTTL = 10 * time.Minute

// Store is the persistence the service needs.
type Store interface {
	PutArchive(a model.Archive) (model.Archive, error)
	GetArchive(id string) (model.Archive, error)
	ListArchives() ([]model.Archive, error)
	MarkArchived(sessionID string) error
}

// Service exports sessions into the archive store.
type Service struct {
	store   Store
	prompts catalog.Lookup
	retry   retry.Config
	cache   *cache.Cache
	now     func() time.Time
}

// New creates a service. Archives are immutable, so reads are cached for ttl.
func New(st Store, prompts catalog.Lookup, retryCfg retry.Config, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		store:   st,
		prompts: prompts,
		retry:   retryCfg,
		cache:   cache.New(ttl, 2*ttl),
		now:     time.Now,
	}
}

// Download is a rendered archive ready to be sent to a client.
type Download struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Archive transforms session and stores the resulting record. Transformer
// errors are returned unchanged; store failures wrap ErrPersistence. A stored
// session is marked archived afterwards.
func (s *Service) Archive(ctx context.Context, session model.Session) (model.Archive, error) {
	rec, err := export.Transform(session, s.prompts)
	if err != nil {
		return model.Archive{}, err
	}
	if err := export.Validate(rec); err != nil {
		return model.Archive{}, err
	}

	a := model.Archive{
		SessionID:  session.ID,
		UserID:     session.UserID,
		ArchivedAt: s.now().UTC().Truncate(time.Millisecond),
		Record:     *rec,
	}
	saved, err := retry.Do(ctx, s.retry, func() (model.Archive, error) {
		return s.store.PutArchive(a)
	})
	if err != nil {
		slog.Error("archive put failed", "session", session.ID, "error", err)
		return model.Archive{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.cache.SetDefault(saved.ID, saved)

	if err := s.store.MarkArchived(session.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("mark session archived", "session", session.ID, "error", err)
	}
	slog.Info("session archived", "session", session.ID, "archive", saved.ID, "responses", len(rec.Responses))
	return saved, nil
}

// Get returns an archive by id.
func (s *Service) Get(ctx context.Context, id string) (model.Archive, error) {
	if v, ok := s.cache.Get(id); ok {
		return v.(model.Archive), nil
	}
	a, err := s.store.GetArchive(id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Archive{}, err
	}
	if err != nil {
		return model.Archive{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.cache.SetDefault(id, a)
	return a, nil
}

// List returns archive summaries, newest first.
func (s *Service) List(ctx context.Context) ([]model.ArchiveSummary, error) {
	archives, err := s.store.ListArchives()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := make([]model.ArchiveSummary, 0, len(archives))
	for _, a := range archives {
		out = append(out, a.Summary())
	}
	return out, nil
}

// Render serializes an archive in format f. The filename carries the
// archive date; now only feeds the report's generation line.
func (s *Service) Render(ctx context.Context, id string, f export.Format, now time.Time) (Download, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Download{}, err
	}
	content, err := export.Render(&a.Record, f, now)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Content:     content,
		ContentType: f.ContentType(),
		Filename:    f.Filename(a.UserID, a.ArchivedAt),
	}, nil
}
