package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/config"
	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/pkg/types"
)

// Service manages session transcripts beneath the data directory.
type Service struct {
	store       *storage.Storage
	projectsDir string
}

// NewService creates a session service rooted at dataDir.
func NewService(dataDir string) *Service {
	return &Service{
		store:       storage.New(dataDir),
		projectsDir: config.ProjectsPath(dataDir),
	}
}

// projectMarker records which project path a hashed directory belongs
// to, since the hash alone is one-way.
type projectMarker struct {
	Path string `json:"path"`
}

// Create starts a new session for a project and returns its writer.
func (s *Service) Create(ctx context.Context, projectPath string) (*Writer, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	hash, err := ProjectHash(abs)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.projectsDir, hash)
	if err := config.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	if !s.store.Exists(ctx, []string{"projects", hash, "project"}) {
		if err := s.store.Put(ctx, []string{"projects", hash, "project"}, projectMarker{Path: abs}); err != nil {
			return nil, fmt.Errorf("failed to write project marker: %w", err)
		}
	}

	now := time.Now().UnixMilli()
	w := &Writer{
		dir:         dir,
		sessionID:   uuid.NewString(),
		projectPath: abs,
		projectHash: hash,
		created:     now,
		updated:     now,
	}

	log.Info().
		Str("session", w.sessionID).
		Str("project", abs).
		Str("hash", hash).
		Msg("session created")

	w.mu.Lock()
	info := w.snapshotLocked()
	w.mu.Unlock()
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: info},
	})

	return w, nil
}

// Resume loads the project's transcript for a given day. A zero date
// means today.
func (s *Service) Resume(ctx context.Context, projectPath string, date time.Time) ([]types.Entry, error) {
	hash, err := ProjectHash(projectPath)
	if err != nil {
		return nil, err
	}

	if date.IsZero() {
		date = time.Now()
	}

	file := filepath.Join(s.projectsDir, hash, date.Format("2006-01-02")+".jsonl")
	entries, err := ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no session file found: %s", file)
		}
		return nil, err
	}

	return entries, nil
}

// Files returns the project's transcript files, newest first.
func (s *Service) Files(projectPath string) ([]string, error) {
	hash, err := ProjectHash(projectPath)
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(s.projectsDir, hash, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	// Names are YYYY-MM-DD, so lexicographic order is date order.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// List aggregates every stored session across all projects, newest
// activity first.
func (s *Service) List(ctx context.Context) ([]*types.Session, error) {
	hashes, err := s.store.List(ctx, []string{"projects"})
	if err != nil {
		return nil, err
	}

	var sessions []*types.Session
	byID := make(map[string]*types.Session)

	for _, hash := range hashes {
		var marker projectMarker
		if err := s.store.Get(ctx, []string{"projects", hash, "project"}, &marker); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		files, err := filepath.Glob(filepath.Join(s.projectsDir, hash, "*.jsonl"))
		if err != nil {
			return nil, fmt.Errorf("failed to list session files: %w", err)
		}
		sort.Strings(files)

		for _, file := range files {
			entries, err := ReadFile(file)
			if err != nil {
				log.Warn().Str("file", file).Err(err).Msg("skipping unreadable session file")
				continue
			}

			for _, e := range entries {
				if e.SessionID == "" {
					continue
				}

				sess := byID[e.SessionID]
				if sess == nil {
					sess = &types.Session{
						ID:          e.SessionID,
						ProjectPath: marker.Path,
						ProjectHash: hash,
					}
					byID[e.SessionID] = sess
					sessions = append(sessions, sess)
				}

				sess.Entries++
				if e.Usage != nil {
					sess.Usage.Add(*e.Usage)
				}
				if ts, err := types.ParseTimestamp(e.Timestamp); err == nil {
					ms := ts.UnixMilli()
					if sess.Time.Created == 0 || ms < sess.Time.Created {
						sess.Time.Created = ms
					}
					if ms > sess.Time.Updated {
						sess.Time.Updated = ms
					}
				}
			}
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})

	return sessions, nil
}

// Usage sums the token counters recorded for a session. Returns
// storage.ErrNotFound for an unknown session id.
func (s *Service) Usage(ctx context.Context, sessionID string) (*types.TokenUsage, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, sess := range sessions {
		if sess.ID == sessionID {
			usage := sess.Usage
			return &usage, nil
		}
	}

	return nil, storage.ErrNotFound
}
