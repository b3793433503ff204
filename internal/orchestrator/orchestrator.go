package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/forgeflow/forgeflow/internal/artifacts"
	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/metrics"
	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/stack"
	"github.com/forgeflow/forgeflow/internal/vault"
)

var ErrValidation = errors.New("invalid provisioning request")

type RunState string

const (
	RunSucceeded       RunState = "succeeded"
	RunPartiallyFailed RunState = "partially_failed"
)

// Request is immutable once submitted; the credentials inside it are
// copied into the run's vault and are the only part with a shorter
// lifetime than the run itself.
type Request struct {
	SubjectID   string
	ProjectName string
	Description string
	Stack       stack.Recommendation
	Credentials map[provider.ID]provider.Credential
}

type Result struct {
	Success   bool                              `json:"success"`
	State     RunState                          `json:"state"`
	Steps     []Step                            `json:"steps"`
	Resources map[provider.ID]provider.Resource `json:"resources"`
	Errors    []string                          `json:"errors,omitempty"`
}

// ProgressFunc receives every step transition synchronously. A panicking
// callback is isolated and never unwinds into the orchestrator.
type ProgressFunc func(Step)

// ArtifactPusher commits generated files into the provisioned repository.
// The source-control adapter satisfies this alongside its Adapter role.
type ArtifactPusher interface {
	PushFiles(ctx context.Context, credential provider.Credential, resource provider.Resource, files map[string]string, message string) error
}

// Orchestrator sequences provider adapters in dependency order: the
// repository must exist before hosting links to it, and the database must
// exist before its connection details are injected as hosting environment
// variables. Each run owns a fresh vault that is destroyed on every exit
// path.
type Orchestrator struct {
	adapters provider.Registry
	pusher   ArtifactPusher
	audit    audit.Publisher
	metrics  *metrics.Metrics
}

func New(adapters provider.Registry, pusher ArtifactPusher, auditPublisher audit.Publisher, m *metrics.Metrics) *Orchestrator {
	if auditPublisher == nil {
		auditPublisher = audit.LogPublisher{}
	}
	return &Orchestrator{
		adapters: adapters,
		pusher:   pusher,
		audit:    auditPublisher,
		metrics:  m,
	}
}

type run struct {
	id       string
	request  Request
	vault    *vault.Vault
	progress ProgressFunc

	steps     []Step
	resources map[provider.ID]provider.Resource
	errors    []string
}

func (o *Orchestrator) Run(ctx context.Context, request Request, progress ProgressFunc) (*Result, error) {
	request.ProjectName = Slugify(request.ProjectName)
	if err := validate(request); err != nil {
		return nil, err
	}

	v, err := vault.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create run vault: %w", err)
	}
	// Backstop: the cleanup step destroys the vault explicitly, but a
	// panic between here and there must not leave live key material.
	defer v.Destroy()

	r := &run{
		id:        uuid.New().String(),
		request:   request,
		vault:     v,
		progress:  progress,
		resources: make(map[provider.ID]provider.Resource),
	}

	for id, credential := range request.Credentials {
		if err := v.Store(string(id)+"_token", credential.Token); err != nil {
			return nil, fmt.Errorf("failed to store credential: %w", err)
		}
	}

	slog.Info("Provisioning run started", "run_id", r.id, "project", request.ProjectName)

	o.plan(ctx, r)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Provisioning run panicked", "run_id", r.id, "panic", rec)
				r.errors = append(r.errors, "internal error during provisioning")
			}
		}()
		o.executeSteps(ctx, r)
	}()

	o.cleanup(ctx, r)

	state := RunSucceeded
	if len(r.errors) > 0 {
		state = RunPartiallyFailed
	}
	if o.metrics != nil {
		o.metrics.ProvisionRuns.WithLabelValues(string(state)).Inc()
	}
	slog.Info("Provisioning run finished", "run_id", r.id, "state", state, "errors", len(r.errors))

	return &Result{
		Success:   len(r.errors) == 0,
		State:     state,
		Steps:     r.steps,
		Resources: r.resources,
		Errors:    r.errors,
	}, nil
}

func validate(request Request) error {
	if request.ProjectName == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}
	credential, ok := request.Credentials[provider.SourceControl]
	if !ok || credential.Token == "" {
		return fmt.Errorf("%w: source control credential is required", ErrValidation)
	}
	return nil
}

// plan seeds every step the run will attempt as pending, so the caller
// sees the full pipeline before the first adapter call.
func (o *Orchestrator) plan(ctx context.Context, r *run) {
	o.transition(ctx, r, StepSourceControl, StatusPending, "", nil)
	if hasCredential(r, provider.Database) {
		o.transition(ctx, r, StepDatabase, StatusPending, "", nil)
	}
	if hasCredential(r, provider.Hosting) {
		o.transition(ctx, r, StepHosting, StatusPending, "", nil)
	}
	if o.pusher != nil {
		o.transition(ctx, r, StepArtifacts, StatusPending, "", nil)
	}
	o.transition(ctx, r, StepCleanup, StatusPending, "", nil)
}

func hasCredential(r *run, id provider.ID) bool {
	credential, ok := r.request.Credentials[id]
	return ok && credential.Token != ""
}

func (o *Orchestrator) executeSteps(ctx context.Context, r *run) {
	o.runSourceControl(ctx, r)
	o.runDatabase(ctx, r)
	o.runHosting(ctx, r)
	o.runArtifacts(ctx, r)
}

func (o *Orchestrator) runSourceControl(ctx context.Context, r *run) {
	o.transition(ctx, r, StepSourceControl, StatusInProgress, "", nil)

	outcome, err := o.adapters[provider.SourceControl].Provision(ctx, o.input(r, provider.SourceControl))
	switch {
	case err != nil:
		o.fail(ctx, r, StepSourceControl, err)
	case outcome.Resource == nil:
		// Recoverable provider condition (for example a template
		// repository that is not published yet). The run continues so
		// independent steps can still succeed.
		r.errors = append(r.errors, outcome.Remediation)
		o.transition(ctx, r, StepSourceControl, StatusFailed, outcome.Remediation, nil)
	default:
		r.resources[provider.SourceControl] = *outcome.Resource
		o.transition(ctx, r, StepSourceControl, StatusCompleted, "", outcome.Resource)
	}
}

func (o *Orchestrator) runDatabase(ctx context.Context, r *run) {
	if !hasCredential(r, provider.Database) {
		return
	}

	o.transition(ctx, r, StepDatabase, StatusInProgress, "", nil)

	outcome, err := o.adapters[provider.Database].Provision(ctx, o.input(r, provider.Database))
	switch {
	case err != nil:
		o.fail(ctx, r, StepDatabase, err)
	case outcome.Resource == nil:
		r.errors = append(r.errors, outcome.Remediation)
		o.transition(ctx, r, StepDatabase, StatusFailed, outcome.Remediation, nil)
	default:
		r.resources[provider.Database] = *outcome.Resource
		o.transition(ctx, r, StepDatabase, StatusCompleted, "", outcome.Resource)
	}
}

func (o *Orchestrator) runHosting(ctx context.Context, r *run) {
	if !hasCredential(r, provider.Hosting) {
		return
	}

	repo, hasRepo := r.resources[provider.SourceControl]
	if !hasRepo {
		o.transition(ctx, r, StepHosting, StatusSkipped, "repository was not created", nil)
		return
	}

	o.transition(ctx, r, StepHosting, StatusInProgress, "", nil)

	input := o.input(r, provider.Hosting)
	input.RepoURL = repo.URL
	input.Env = o.hostingEnv(r)

	outcome, err := o.adapters[provider.Hosting].Provision(ctx, input)
	switch {
	case err != nil:
		o.fail(ctx, r, StepHosting, err)
	case outcome.Resource == nil:
		r.errors = append(r.errors, outcome.Remediation)
		o.transition(ctx, r, StepHosting, StatusFailed, outcome.Remediation, nil)
	default:
		r.resources[provider.Hosting] = *outcome.Resource
		o.transition(ctx, r, StepHosting, StatusCompleted, "", outcome.Resource)
	}
}

// hostingEnv wires database connection details discovered earlier in the
// run into the hosting project's environment. Values resolve through the
// vault; variables whose secrets are absent are simply omitted.
func (o *Orchestrator) hostingEnv(r *run) map[string]string {
	db, ok := r.resources[provider.Database]
	if !ok {
		return nil
	}

	templates := map[string]string{
		"DATABASE_URL":              "{{secrets.database_url}}",
		"SUPABASE_ANON_KEY":         "{{secrets.database_anon_key}}",
		"SUPABASE_SERVICE_ROLE_KEY": "{{secrets.database_service_role_key}}",
	}

	env := map[string]string{"SUPABASE_URL": db.URL}
	for key, template := range templates {
		value, err := r.vault.Resolve(template)
		if err != nil {
			slog.Debug("Skipping hosting env var", "key", key, "error", err)
			continue
		}
		env[key] = value
	}
	return env
}

// runArtifacts pushes generated files into the repository. Best effort:
// its failure is recorded on the step but never flips the run result.
func (o *Orchestrator) runArtifacts(ctx context.Context, r *run) {
	if o.pusher == nil {
		return
	}
	repo, ok := r.resources[provider.SourceControl]
	if !ok {
		o.transition(ctx, r, StepArtifacts, StatusSkipped, "repository was not created", nil)
		return
	}

	o.transition(ctx, r, StepArtifacts, StatusInProgress, "", nil)

	files := artifacts.Build(r.request.ProjectName, r.resources, r.request.Stack)
	credential := o.credential(r, provider.SourceControl)

	if err := o.pusher.PushFiles(ctx, credential, repo, files, "Add infrastructure docs and environment templates"); err != nil {
		slog.Warn("Artifact push failed", "run_id", r.id, "error", err)
		o.transition(ctx, r, StepArtifacts, StatusFailed, "artifact push failed: "+err.Error(), nil)
		return
	}
	o.transition(ctx, r, StepArtifacts, StatusCompleted, "", nil)
}

// cleanup always runs exactly once, success or failure, and is the only
// place the run's vault is destroyed deliberately.
func (o *Orchestrator) cleanup(ctx context.Context, r *run) {
	o.transition(ctx, r, StepCleanup, StatusInProgress, "", nil)
	r.vault.Destroy()
	o.transition(ctx, r, StepCleanup, StatusCompleted, "credentials destroyed", nil)
}

func (o *Orchestrator) input(r *run, id provider.ID) provider.Input {
	return provider.Input{
		ProjectName: r.request.ProjectName,
		Description: r.request.Description,
		Credential:  o.credential(r, id),
		Secrets:     r.vault,
	}
}

// credential rebuilds a provider credential from the vault so adapters
// always act on the run-scoped copy.
func (o *Orchestrator) credential(r *run, id provider.ID) provider.Credential {
	token, err := r.vault.Retrieve(string(id) + "_token")
	if err != nil {
		slog.Error("Credential retrieval failed", "run_id", r.id, "provider", id, "error", err)
	}
	return provider.Credential{
		Provider: id,
		Token:    token,
		Extra:    r.request.Credentials[id].Extra,
	}
}

func (o *Orchestrator) fail(ctx context.Context, r *run, id StepID, err error) {
	message := stepFailureMessages[id]
	r.errors = append(r.errors, message)
	slog.Error("Provisioning step failed", "run_id", r.id, "step", id, "error", err)
	o.transition(ctx, r, id, StatusFailed, err.Error(), nil)
}

// transition updates the step record in place (appending on first sight),
// then notifies the progress callback and the audit sink.
func (o *Orchestrator) transition(ctx context.Context, r *run, id StepID, status StepStatus, message string, resource *provider.Resource) {
	step := Step{
		ID:      id,
		Name:    stepNames[id],
		Status:  status,
		Message: message,
		Result:  resource,
	}

	updated := false
	for i := range r.steps {
		if r.steps[i].ID == id {
			r.steps[i] = step
			updated = true
			break
		}
	}
	if !updated {
		r.steps = append(r.steps, step)
	}

	if o.metrics != nil {
		o.metrics.ProvisionSteps.WithLabelValues(string(id), string(status)).Inc()
	}
	o.audit.Emit(ctx, audit.Event{
		Subject: r.request.SubjectID,
		Type:    audit.EventToolUse,
		Status:  string(status),
		Detail:  map[string]any{"run_id": r.id, "step": string(id)},
	})
	notify(r.progress, step)
}

// notify isolates the caller-supplied callback: a panic there must not
// corrupt the run.
func notify(progress ProgressFunc, step Step) {
	if progress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Progress callback panicked", "step", step.ID, "panic", rec)
		}
	}()
	progress(step)
}
