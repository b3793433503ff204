package orchestrator

import (
	"regexp"
	"strings"

	"github.com/forgeflow/forgeflow/internal/provider"
)

type StepID string

const (
	StepSourceControl StepID = "source_control"
	StepDatabase      StepID = "database"
	StepHosting       StepID = "hosting"
	StepArtifacts     StepID = "artifacts"
	StepCleanup       StepID = "cleanup"
)

type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
	// StatusSkipped records a step whose prerequisite produced no
	// resource. A skip is a no-op, not an error.
	StatusSkipped StepStatus = "skipped"
)

// Step is both the state machine record and the progress event delivered
// to the caller. Steps are updated in place by id; the ordered list is the
// event stream.
type Step struct {
	ID      StepID             `json:"id"`
	Name    string             `json:"name"`
	Status  StepStatus         `json:"status"`
	Message string             `json:"message,omitempty"`
	Result  *provider.Resource `json:"result,omitempty"`
}

var stepNames = map[StepID]string{
	StepSourceControl: "Create repository",
	StepDatabase:      "Provision database",
	StepHosting:       "Create hosting project",
	StepArtifacts:     "Push project artifacts",
	StepCleanup:       "Clean up credentials",
}

// Fixed user-facing failure messages; the step's Message field carries the
// underlying detail.
var stepFailureMessages = map[StepID]string{
	StepSourceControl: "Failed to create repository",
	StepDatabase:      "Failed to create database project",
	StepHosting:       "Failed to create hosting project",
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
var slugDashes = regexp.MustCompile(`-{2,}`)

// Slugify normalizes a project name into the lowercase-dashed form every
// provider accepts as a resource name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugInvalid.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
