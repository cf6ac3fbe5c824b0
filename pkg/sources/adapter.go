// Package sources implements source adapters that extract events from
// external systems (git, GitHub, Slack, API logs) and the orchestrator-owned
// cursor contract that makes each adapter's sync resumable.
//
// Variants are a closed, explicit set (Type enum plus a New factory) rather
// than a runtime plugin registry: Go's static typing has no equivalent of a
// dynamic class lookup that is worth reaching for here, and an explicit
// switch keeps every variant's config requirements checkable at compile
// time.
package sources

import (
	"context"
	"fmt"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// Type identifies a source adapter variant.
type Type string

const (
	TypeGit    Type = "git"
	TypeGitHub Type = "github"
	TypeSlack  Type = "slack"
	TypeAPILog Type = "api_log"
)

// Adapter is the contract every source variant implements.
type Adapter interface {
	// SourceID is the unique identifier used for cursor bookkeeping.
	SourceID() string
	// Type reports the adapter variant.
	Type() Type
	// Validate checks connectivity/credentials/config health.
	Validate(ctx context.Context) error
	// SupportsIncremental reports whether Generate can resume from a cursor.
	SupportsIncremental() bool
	// Generate streams events starting after the given cursor (nil for a
	// full sync). The returned channel is closed when the adapter has
	// caught up to the current end of its stream; the error channel
	// receives at most one error and is then closed.
	Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error)
	// Cursor returns the adapter's current position. The built-in adapters
	// advance it only once a Generate run has read to the end of its
	// stream, so a run that stops early keeps the previous position. The
	// orchestrator persists
	// this only after the corresponding batch has been durably written.
	Cursor() models.Cursor
}

// New builds the Adapter configured for sourceID per cfg.Type.
func New(sourceID string, cfg config.SourceConfig) (Adapter, error) {
	switch Type(cfg.Type) {
	case TypeGit:
		return NewGitAdapter(sourceID, cfg)
	case TypeGitHub:
		return NewGitHubAdapter(sourceID, cfg)
	case TypeSlack:
		return NewSlackAdapter(sourceID, cfg)
	case TypeAPILog:
		return NewAPILogAdapter(sourceID, cfg)
	default:
		return nil, fmt.Errorf("sources: unknown source type %q for %q", cfg.Type, sourceID)
	}
}
