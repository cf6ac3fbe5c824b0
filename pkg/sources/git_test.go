package sources

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

func fakeGitRunner(t *testing.T, logOutput string, filesByCommit map[string]string) commandRunner {
	t.Helper()
	return func(ctx context.Context, dir string, args ...string) (string, error) {
		switch {
		case len(args) > 0 && args[0] == "rev-parse":
			return "true\n", nil
		case len(args) > 0 && args[0] == "log":
			return logOutput, nil
		case len(args) > 0 && args[0] == "show":
			sha := args[len(args)-1]
			return filesByCommit[sha], nil
		}
		return "", nil
	}
}

func newTestGitAdapter(t *testing.T, logOutput string, filesByCommit map[string]string) *GitAdapter {
	a, err := NewGitAdapter("repo-1", config.SourceConfig{
		Type:    "git",
		Options: map[string]string{"repo_path": "/repo", "branch": "main"},
	})
	require.NoError(t, err)
	a.run = fakeGitRunner(t, logOutput, filesByCommit)
	return a
}

func buildLog(records ...[4]string) string {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(strings.Join(r[:], fieldSeparator))
		sb.WriteString(logSeparator)
	}
	return sb.String()
}

func TestGitAdapter_GeneratesOneEventPerCommit(t *testing.T) {
	logOut := buildLog(
		[4]string{"sha1", "alice", "2026-01-01T00:00:00Z", "first commit"},
		[4]string{"sha2", "bob", "2026-01-02T00:00:00Z", "second commit"},
	)
	a := newTestGitAdapter(t, logOut, map[string]string{
		"sha1": "a.go\n",
		"sha2": "b.go\nc.go\n",
	})

	ctx := context.Background()
	evCh, errCh := a.Generate(ctx, nil)

	var got []models.Event
	for ev := range evCh {
		got = append(got, ev)
	}
	require.NoError(t, <-errCh)

	require.Len(t, got, 2)
	assert.Equal(t, "first commit", got[0].Content)
	assert.Equal(t, "sha1", got[0].Code.GitCommit)
	assert.Equal(t, "alice", got[0].Code.GitAuthor)
	assert.Equal(t, []string{"a.go"}, got[0].Context.Files)

	assert.Equal(t, "sha2", got[1].Code.GitCommit)
	assert.Equal(t, []string{"b.go", "c.go"}, got[1].Context.Files)

	assert.Equal(t, "sha2", a.cursor.LastCommitSHA)
	assert.Equal(t, "main", a.cursor.Branch)

	cur := a.Cursor()
	assert.Equal(t, "repo-1", cur.SourceID)
}

func TestGitAdapter_CursorResumesFromLastCommit(t *testing.T) {
	a := newTestGitAdapter(t, "", nil)
	a.cursor.LastCommitSHA = "sha1"

	var capturedRange string
	a.run = func(ctx context.Context, dir string, args ...string) (string, error) {
		if len(args) > 0 && args[0] == "rev-parse" {
			return "true\n", nil
		}
		if len(args) > 0 && args[0] == "log" {
			capturedRange = args[len(args)-1]
			return "", nil
		}
		return "", nil
	}

	evCh, errCh := a.Generate(context.Background(), nil)
	for range evCh {
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, "sha1..main", capturedRange)
}

func TestGitAdapter_Validate(t *testing.T) {
	a := newTestGitAdapter(t, "", nil)
	assert.NoError(t, a.Validate(context.Background()))
}
