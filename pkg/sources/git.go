package sources

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// gitCursor is GitAdapter's cursor payload: the last commit ingested on a
// branch, so the next sync resumes from that point in the chain.
type gitCursor struct {
	LastCommitSHA string `json:"last_commit_sha"`
	Branch        string `json:"branch"`
}

// commandRunner abstracts process execution so tests can inject canned git
// output instead of depending on a real repository and git binary.
type commandRunner func(ctx context.Context, dir string, args ...string) (string, error)

func execCommandRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// GitAdapter extracts commits from a local git working tree as events.
type GitAdapter struct {
	sourceID string
	repoPath string
	branch   string
	cursor   gitCursor
	run      commandRunner
}

// NewGitAdapter builds a GitAdapter from a source config. Expects
// cfg.Options["repo_path"] and optionally cfg.Options["branch"] (default
// "HEAD").
func NewGitAdapter(sourceID string, cfg config.SourceConfig) (*GitAdapter, error) {
	repoPath := cfg.Options["repo_path"]
	if repoPath == "" {
		return nil, fmt.Errorf("git source %q: options.repo_path is required", sourceID)
	}
	branch := cfg.Options["branch"]
	if branch == "" {
		branch = "HEAD"
	}
	return &GitAdapter{
		sourceID: sourceID,
		repoPath: repoPath,
		branch:   branch,
		run:      execCommandRunner,
	}, nil
}

func (a *GitAdapter) SourceID() string          { return a.sourceID }
func (a *GitAdapter) Type() Type                { return TypeGit }
func (a *GitAdapter) SupportsIncremental() bool { return true }

func (a *GitAdapter) Validate(ctx context.Context) error {
	_, err := a.run(ctx, a.repoPath, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("git source %q: not a git repository at %s: %w", a.sourceID, a.repoPath, err)
	}
	return nil
}

func (a *GitAdapter) Cursor() models.Cursor {
	c, _ := models.NewCursor(a.sourceID, a.cursor)
	return c
}

// logSeparator delimits commit records in `git log` output; chosen to be
// vanishingly unlikely to appear in a commit message.
const logSeparator = "\x1e"
const fieldSeparator = "\x1f"

// Generate streams one event per commit reachable from branch, newest-first
// in git's native order but emitted oldest-first so IngestSourceID ordering
// matches the event stream's chronological invariant.
func (a *GitAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	events := make(chan models.Event)
	errs := make(chan error, 1)

	if cursor != nil {
		_ = cursor.Decode(&a.cursor)
	}

	go func() {
		defer close(events)
		defer close(errs)

		revRange := a.branch
		if a.cursor.LastCommitSHA != "" {
			revRange = a.cursor.LastCommitSHA + ".." + a.branch
		}

		format := strings.Join([]string{"%H", "%an", "%aI", "%s"}, fieldSeparator)
		out, err := a.run(ctx, a.repoPath, "log", "--reverse",
			"--pretty=format:"+format+logSeparator, revRange)
		if err != nil {
			errs <- err
			return
		}
		if strings.TrimSpace(out) == "" {
			return
		}

		records := strings.Split(out, logSeparator)
		var lastSHA string
		for _, rec := range records {
			rec = strings.TrimSpace(rec)
			if rec == "" {
				continue
			}
			fields := strings.SplitN(rec, fieldSeparator, 4)
			if len(fields) != 4 {
				continue
			}
			sha, author, iso, subject := fields[0], fields[1], fields[2], fields[3]
			ts, err := time.Parse(time.RFC3339, iso)
			if err != nil {
				ts = time.Now().UTC()
			}

			files, _ := a.run(ctx, a.repoPath, "show", "--name-only", "--pretty=format:", sha)
			var changedFiles []string
			for _, f := range strings.Split(files, "\n") {
				if f = strings.TrimSpace(f); f != "" {
					changedFiles = append(changedFiles, f)
				}
			}

			ev := models.Event{
				ProjectID: a.sourceID,
				SessionID: a.sourceID + ":" + a.branch,
				Timestamp: ts.UTC(),
				EventType: models.EventTypeFileChange,
				Content:   subject,
				Context: models.EventContext{
					Files:  changedFiles,
					Branch: a.branch,
				},
				Metrics:        models.EventMetrics{FilesChanged: len(changedFiles)},
				Evidence:       models.Evidence{Type: models.EvidenceObserved, SourceID: a.sourceID, Quality: 1.0},
				Lifecycle:      models.Lifecycle{Status: models.LifecycleActive},
				IngestSourceID: a.sourceID,
				Code: &models.CodeContext{
					GitCommit: sha,
					GitAuthor: author,
				},
			}

			select {
			case events <- ev:
				lastSHA = sha
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		if lastSHA != "" {
			a.cursor.LastCommitSHA = lastSHA
			a.cursor.Branch = a.branch
		}
	}()

	return events, errs
}
