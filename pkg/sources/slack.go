package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// slackCursor tracks the last message timestamp seen per channel. Slack
// timestamps ("ts") are themselves a string-encoded float and sort
// lexicographically within a channel, which is what conversations.history's
// "oldest" cursor parameter expects.
type slackCursor struct {
	LastTimestamp string `json:"last_timestamp"`
}

type slackMessage struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Ts      string `json:"ts"`
	SubType string `json:"subtype"`
}

type slackHistoryResponse struct {
	OK       bool           `json:"ok"`
	Error    string         `json:"error"`
	Messages []slackMessage `json:"messages"`
	HasMore  bool           `json:"has_more"`
}

// SlackAdapter pulls a channel's message history via the Web API.
type SlackAdapter struct {
	sourceID string
	channel  string
	token    string
	cursor   slackCursor
	client   httpDoer
	baseURL  string
}

// NewSlackAdapter builds a SlackAdapter. Expects cfg.Options["channel"] (a
// channel ID) and cfg.CredentialsEnv["token"] naming the environment
// variable holding a bot token.
func NewSlackAdapter(sourceID string, cfg config.SourceConfig) (*SlackAdapter, error) {
	channel := cfg.Options["channel"]
	if channel == "" {
		return nil, fmt.Errorf("slack source %q: options.channel is required", sourceID)
	}
	envVar := cfg.CredentialsEnv["token"]
	if envVar == "" {
		return nil, fmt.Errorf("slack source %q: credentials_env.token is required", sourceID)
	}
	return &SlackAdapter{
		sourceID: sourceID,
		channel:  channel,
		token:    os.Getenv(envVar),
		client:   http.DefaultClient,
		baseURL:  "https://slack.com/api",
	}, nil
}

func (a *SlackAdapter) SourceID() string          { return a.sourceID }
func (a *SlackAdapter) Type() Type                { return TypeSlack }
func (a *SlackAdapter) SupportsIncremental() bool { return true }

func (a *SlackAdapter) Validate(ctx context.Context) error {
	if a.token == "" {
		return fmt.Errorf("slack source %q: token is empty", a.sourceID)
	}
	resp, err := a.call(ctx, "auth.test", nil)
	if err != nil {
		return fmt.Errorf("slack source %q: %w", a.sourceID, err)
	}
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if !result.OK {
		return Permanent(fmt.Errorf("slack source %q: auth.test failed: %s", a.sourceID, result.Error))
	}
	return nil
}

func (a *SlackAdapter) Cursor() models.Cursor {
	c, _ := models.NewCursor(a.sourceID, a.cursor)
	return c
}

func (a *SlackAdapter) call(ctx context.Context, method string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode))
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Generate fetches messages newer than the cursor's LastTimestamp via
// conversations.history, paging while HasMore is set.
func (a *SlackAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	events := make(chan models.Event)
	errs := make(chan error, 1)

	if cursor != nil {
		_ = cursor.Decode(&a.cursor)
	}

	go func() {
		defer close(events)
		defer close(errs)

		var newest string
		params := url.Values{"channel": {a.channel}}
		if a.cursor.LastTimestamp != "" {
			params.Set("oldest", a.cursor.LastTimestamp)
		}

		for {
			body, err := a.call(ctx, "conversations.history", params)
			if err != nil {
				errs <- fmt.Errorf("slack source %q: %w", a.sourceID, err)
				return
			}
			var page slackHistoryResponse
			if err := json.Unmarshal(body, &page); err != nil {
				errs <- fmt.Errorf("slack source %q: decode: %w", a.sourceID, err)
				return
			}
			if !page.OK {
				errs <- fmt.Errorf("slack source %q: conversations.history failed: %s", a.sourceID, page.Error)
				return
			}

			// Slack returns newest-first; emit oldest-first.
			for i := len(page.Messages) - 1; i >= 0; i-- {
				m := page.Messages[i]
				if m.Ts == a.cursor.LastTimestamp || m.Type != "message" || m.SubType != "" {
					continue
				}
				ts := parseSlackTimestamp(m.Ts)

				ev := models.Event{
					ProjectID:      a.sourceID,
					SessionID:      a.sourceID + ":" + a.channel,
					Timestamp:      ts,
					EventType:      models.EventTypeConversation,
					Content:        m.Text,
					Evidence:       models.Evidence{Type: models.EvidenceObserved, SourceID: a.sourceID, Quality: 1.0},
					Lifecycle:      models.Lifecycle{Status: models.LifecycleActive},
					IngestSourceID: a.sourceID,
				}

				select {
				case events <- ev:
					newest = m.Ts
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			if !page.HasMore {
				break
			}
			params.Set("oldest", newest)
		}

		if newest != "" {
			a.cursor.LastTimestamp = newest
		}
	}()

	return events, errs
}

func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
