package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// githubCursor tracks the last event ID seen per repo, mirroring GitHub's
// own "poll the events feed, remember the highest ID" recommendation.
type githubCursor struct {
	LastEventID int64 `json:"last_event_id"`
}

// githubEvent is the subset of GitHub's Events API payload this adapter
// consumes. See https://docs.github.com/en/rest/activity/events.
type githubEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     struct{ Login string }
	Repo      struct{ Name string }
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// httpDoer abstracts *http.Client so tests can inject a fake transport
// without a real network call.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GitHubAdapter polls a repository's public events feed over the REST API.
type GitHubAdapter struct {
	sourceID string
	repo     string // "owner/name"
	token    string
	cursor   githubCursor
	client   httpDoer
	baseURL  string
}

// NewGitHubAdapter builds a GitHubAdapter. Expects cfg.Options["repo"]
// ("owner/name") and, if the repo is private or rate limits matter,
// cfg.CredentialsEnv["token"] naming the environment variable holding a
// personal access token.
func NewGitHubAdapter(sourceID string, cfg config.SourceConfig) (*GitHubAdapter, error) {
	repo := cfg.Options["repo"]
	if repo == "" {
		return nil, fmt.Errorf("github source %q: options.repo is required", sourceID)
	}
	var token string
	if envVar := cfg.CredentialsEnv["token"]; envVar != "" {
		token = os.Getenv(envVar)
	}
	return &GitHubAdapter{
		sourceID: sourceID,
		repo:     repo,
		token:    token,
		client:   http.DefaultClient,
		baseURL:  "https://api.github.com",
	}, nil
}

func (a *GitHubAdapter) SourceID() string          { return a.sourceID }
func (a *GitHubAdapter) Type() Type                { return TypeGitHub }
func (a *GitHubAdapter) SupportsIncremental() bool { return true }

func (a *GitHubAdapter) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/repos/"+a.repo, nil)
	if err != nil {
		return err
	}
	a.authorize(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("github source %q: %w", a.sourceID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp,
			fmt.Errorf("github source %q: repo %s: unexpected status %d", a.sourceID, a.repo, resp.StatusCode))
	}
	return nil
}

func (a *GitHubAdapter) Cursor() models.Cursor {
	c, _ := models.NewCursor(a.sourceID, a.cursor)
	return c
}

func (a *GitHubAdapter) authorize(req *http.Request) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

// Generate polls /repos/{repo}/events once and streams events newer than
// the cursor's LastEventID. GitHub's events feed is a fixed-size recent
// window, not a full history: like the upstream API itself, this adapter
// cannot backfill further than that window covers.
func (a *GitHubAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	events := make(chan models.Event)
	errs := make(chan error, 1)

	if cursor != nil {
		_ = cursor.Decode(&a.cursor)
	}

	go func() {
		defer close(events)
		defer close(errs)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/repos/"+a.repo+"/events", nil)
		if err != nil {
			errs <- err
			return
		}
		a.authorize(req)

		resp, err := a.client.Do(req)
		if err != nil {
			errs <- fmt.Errorf("github source %q: %w", a.sourceID, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			errs <- classifyHTTPStatus(resp,
				fmt.Errorf("github source %q: unexpected status %d", a.sourceID, resp.StatusCode))
			return
		}

		var raw []githubEvent
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			errs <- fmt.Errorf("github source %q: decode events: %w", a.sourceID, err)
			return
		}

		// GitHub returns newest-first; emit oldest-first for chronological
		// ordering, same convention as the git adapter.
		var maxID int64
		for i := len(raw) - 1; i >= 0; i-- {
			ge := raw[i]
			id, err := strconv.ParseInt(ge.ID, 10, 64)
			if err != nil {
				continue
			}
			if id <= a.cursor.LastEventID {
				continue
			}

			ev := models.Event{
				ProjectID: a.sourceID,
				SessionID: a.sourceID + ":" + ge.Repo.Name,
				Timestamp: ge.CreatedAt.UTC(),
				EventType: models.EventTypeFileChange,
				Content:   fmt.Sprintf("%s by %s", ge.Type, ge.Actor.Login),
				Context: models.EventContext{
					Task: ge.Type,
				},
				Evidence:       models.Evidence{Type: models.EvidenceObserved, SourceID: a.sourceID, Quality: 1.0},
				Lifecycle:      models.Lifecycle{Status: models.LifecycleActive},
				IngestSourceID: a.sourceID,
			}

			select {
			case events <- ev:
				if id > maxID {
					maxID = id
				}
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		if maxID > a.cursor.LastEventID {
			a.cursor.LastEventID = maxID
		}
	}()

	return events, errs
}
