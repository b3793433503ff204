package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ID identifies one of the external systems the orchestrator provisions.
// The set is closed: adapters are looked up through a typed registry, never
// selected by string branching in core logic.
type ID string

const (
	SourceControl ID = "source_control"
	Database      ID = "database"
	Hosting       ID = "hosting"
)

var ErrUnknownProvider = errors.New("unknown provider")

func ParseID(raw string) (ID, error) {
	switch ID(raw) {
	case SourceControl, Database, Hosting:
		return ID(raw), nil
	}
	return "", fmt.Errorf("%q: %w", raw, ErrUnknownProvider)
}

// CallTimeout bounds every adapter call. There is no caller cancellation
// propagation into an in-flight provider call; the hard timeout is the
// substitute.
const CallTimeout = 60 * time.Second

// Credential is what an adapter needs to act on a user's behalf for one
// provisioning run. Extra carries provider-specific fields such as an
// organization or team id.
type Credential struct {
	Provider ID
	Token    string
	Extra    map[string]string
}

// Resource is the canonical public descriptor of one provisioned system.
// It never carries credentials; URL and CloneURL are safe to return to
// callers and to store in run results.
type Resource struct {
	Provider ID     `json:"provider"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	CloneURL string `json:"clone_url,omitempty"`
	Host     string `json:"host,omitempty"`
	Region   string `json:"region,omitempty"`
}

// SecretSink receives credentials discovered during provisioning, such as
// generated database passwords and API keys. The orchestrator passes the
// run's vault so these values never appear in a returned Resource.
type SecretSink interface {
	Store(key, value string) error
}

// Input is the generic provisioning intent handed to an adapter. Fields
// not relevant to a given adapter are ignored by it.
type Input struct {
	ProjectName string
	Description string
	Credential  Credential

	// Secrets is the run-scoped sink for discovered credentials.
	Secrets SecretSink

	// RepoURL chains the source-control result into the hosting adapter.
	RepoURL string
	// Env carries environment variables the hosting adapter should set,
	// values already resolved (no secret references).
	Env map[string]string
}

// Outcome distinguishes results that are neither clean success nor hard
// failure, such as a source-control template that is not ready yet.
type Outcome struct {
	Resource    *Resource
	Remediation string
}

// Adapter translates a provisioning intent into one provider's API calls.
// Implementations return an Outcome with a nil Resource plus Remediation
// text for recoverable conditions; errors are reserved for failed calls.
type Adapter interface {
	Provision(ctx context.Context, input Input) (Outcome, error)
}

// Registry maps each provider id to its adapter.
type Registry map[ID]Adapter
