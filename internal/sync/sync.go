// Package sync imports notes from deck sources into storage.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/lingqdeck/internal/gitsource"
	"github.com/conorfennell/lingqdeck/internal/knol"
	"github.com/conorfennell/lingqdeck/internal/parser"
	"github.com/conorfennell/lingqdeck/internal/storage"
)

// Result summarises the reconciliation of one source.
type Result struct {
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

// Syncer reconciles deck sources with the notes table.
type Syncer struct {
	db       *storage.DB
	reposDir string
	now      func() time.Time
}

// NewSyncer returns a Syncer that clones git sources under reposDir.
func NewSyncer(db *storage.DB, reposDir string) *Syncer {
	return &Syncer{db: db, reposDir: reposDir, now: time.Now}
}

// AddSource registers path (a directory or a git URL) for userID. Adding a
// path twice returns the existing source.
func (s *Syncer) AddSource(ctx context.Context, userID int64, path string) (*storage.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("add source: empty path")
	}
	sourceType := SourceType(path)
	if sourceType == storage.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("add source: %w", err)
		}
		path = abs
	}

	existing, err := s.db.FindSourceByPath(ctx, userID, path)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if _, err := s.db.InsertSource(ctx, userID, SourceName(path), path, sourceType); err != nil {
		return nil, err
	}
	return s.db.FindSourceByPath(ctx, userID, path)
}

// SourceType tells git URLs from local paths.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return storage.SourceGit
	}
	return storage.SourceLocal
}

// SourceName is the label notes from path carry: the last path element
// without a .git suffix.
func SourceName(path string) string {
	path = strings.TrimSuffix(strings.TrimRight(path, "/"), ".git")
	if i := strings.LastIndexAny(path, "/:\\"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// RunSync reconciles every configured source. A failing source does not stop
// the others; all failures are returned joined.
func (s *Syncer) RunSync(ctx context.Context) error {
	slog.InfoContext(ctx, "starting sync of all sources")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return fmt.Errorf("get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.InfoContext(ctx, "no sources configured, add one with --add-source <path/or/url.git>")
		return nil
	}
	return s.syncAll(ctx, sources)
}

// SyncUser reconciles the sources of one user.
func (s *Syncer) SyncUser(ctx context.Context, userID int64) error {
	sources, err := s.db.GetSources(ctx, userID)
	if err != nil {
		return fmt.Errorf("get sources of user %d: %w", userID, err)
	}
	return s.syncAll(ctx, sources)
}

func (s *Syncer) syncAll(ctx context.Context, sources []storage.Source) error {
	var errs []error
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SyncSource(ctx, source); err != nil {
			slog.ErrorContext(ctx, "source sync failed", "id", source.ID, "path", source.Path, "error", err)
			errs = append(errs, err)
		}
	}
	slog.InfoContext(ctx, "sync complete", "sources", len(sources), "failed", len(errs))
	return errors.Join(errs...)
}

// SyncSource fetches a source when it is a git repository and reconciles its
// notes.
func (s *Syncer) SyncSource(ctx context.Context, source storage.Source) (Result, error) {
	slog.InfoContext(ctx, "syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == storage.SourceGit {
		localPath, err := gitURLToLocalPath(s.reposDir, source.Path)
		if err != nil {
			return Result{}, err
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return Result{}, fmt.Errorf("create repos dir: %w", err)
		}
		if err := gitsource.Sync(ctx, source.Path, localPath, nil); err != nil {
			return Result{}, err
		}
		dir = localPath
	}
	return s.reconcile(ctx, source, dir)
}

func (s *Syncer) reconcile(ctx context.Context, source storage.Source, dir string) (Result, error) {
	var res Result
	now := s.now()

	stored, err := s.db.GetNoteHashesBySourceID(ctx, source.ID)
	if err != nil {
		return res, err
	}
	existing := make(map[string]bool, len(stored))
	for _, hash := range stored {
		existing[hash] = true
	}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		notes, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, note := range notes {
			note.UserID = source.UserID
			note.Source = source.Name
			note.Hash = knol.Hash(note)
			res.Parsed++
			found[note.Hash] = true

			if existing[note.Hash] {
				continue
			}
			if _, err := s.db.InsertNote(ctx, note, source.ID, now); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db insert for %s: %w", note.Hash, err))
				continue
			}
			existing[note.Hash] = true
			res.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	for _, hash := range stored {
		if found[hash] {
			continue
		}
		slog.InfoContext(ctx, "orphaned note, deleting", "source_id", source.ID, "hash", hash)
		if err := s.db.DeleteSourceNote(ctx, source.ID, hash); err != nil {
			slog.WarnContext(ctx, "failed to delete orphaned note", "hash", hash, "error", err)
			continue
		}
		res.Deleted++
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		slog.WarnContext(ctx, "failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.InfoContext(ctx, "reconciliation complete",
		"path", dir,
		"parsed_notes", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

// gitURLToLocalPath maps a repository URL to its clone directory under
// baseDir. URLs that would escape baseDir are rejected.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	var host, repoPath string
	parsedURL, err := url.Parse(repoURL)
	if err == nil && (parsedURL.Scheme == "https" || parsedURL.Scheme == "http") {
		host, repoPath = parsedURL.Host, parsedURL.Path
	} else {
		// scp-like syntax: git@host:owner/repo.git
		user, rest, ok := strings.Cut(repoURL, "@")
		if ok && user != "" {
			host, repoPath, ok = strings.Cut(rest, ":")
		}
		if !ok {
			host, repoPath = "", ""
		}
	}
	if host == "" || strings.Trim(repoPath, "/") == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	localPath := filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git"))
	rel, err := filepath.Rel(baseDir, localPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL %s resolves outside %s", repoURL, baseDir)
	}
	return localPath, nil
}
