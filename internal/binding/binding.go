// Package binding connects runs to credentials. A run carries
// credential parameters supplied at trigger time; the binder resolves a
// parameter or literal id to a credential under the correct identity
// and records the use in the fingerprint ledger while the run is live.
package binding

import (
	"context"
	"strings"
	"sync"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/fingerprint"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/internal/resolve"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

// Parameter is one credential parameter of a run.
type Parameter struct {
	// Name of the parameter as referenced by ${name}.
	Name string
	// CredentialID the parameter points at.
	CredentialID string
	// UserID identifies who supplied the value. Empty for defaults.
	UserID string
	// IsDefault marks the job's configured default value, as opposed to
	// a value chosen by the triggering user.
	IsDefault bool
}

// Run models one execution of a job for credential purposes.
type Run struct {
	// Job is the hierarchy context the run executes under.
	Job *hierarchy.Context
	// ID names the run within the job.
	ID string
	// Principal is the authentication the run executes as.
	Principal permissions.Principal

	mu         sync.RWMutex
	params     map[string]Parameter
	inProgress bool
}

// NewRun starts a run. It is in progress until Finish is called.
func NewRun(job *hierarchy.Context, id string, principal permissions.Principal) *Run {
	return &Run{
		Job:        job,
		ID:         id,
		Principal:  principal,
		params:     make(map[string]Parameter),
		inProgress: true,
	}
}

// SetParameter attaches a credential parameter to the run.
func (r *Run) SetParameter(p Parameter) {
	r.mu.Lock()
	r.params[p.Name] = p
	r.mu.Unlock()
}

// Parameter looks up a parameter by name.
func (r *Run) Parameter(name string) (Parameter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[name]
	return p, ok
}

// InProgress reports whether the run is still live.
func (r *Run) InProgress() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inProgress
}

// Finish marks the run complete. Credential resolution against a
// finished run no longer consults parameters or records usage.
func (r *Run) Finish() {
	r.mu.Lock()
	r.inProgress = false
	r.mu.Unlock()
}

// Binder resolves credential references for runs.
type Binder struct {
	engine *resolve.Engine
	ledger *fingerprint.Ledger
	logger *logging.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger overrides the binder logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

// NewBinder creates a binder. The ledger may be nil to skip tracking.
func NewBinder(engine *resolve.Engine, ledger *fingerprint.Ledger, opts ...Option) *Binder {
	b := &Binder{engine: engine, ledger: ledger, logger: logging.New(false, true)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// normalizeRef strips the ${...} wrapper from a parameter reference.
func normalizeRef(id string) string {
	if strings.HasPrefix(id, "${") && strings.HasSuffix(id, "}") {
		return strings.TrimSpace(id[2 : len(id)-1])
	}
	return id
}

// ResolveByID resolves id for the run. A reference of the form
// ${name} is looked up among the run's parameters; the job's default
// value resolves under the run's own authentication, while a value the
// triggering user chose resolves against that user's personal
// credentials. While the run is in progress every successful
// resolution is recorded in the fingerprint ledger.
func (b *Binder) ResolveByID(ctx context.Context, typeTag, id string, run *Run, reqs ...domain.Requirement) (credentials.Credential, error) {
	if run == nil {
		return nil, credErrors.Invalidf("credential resolution requires a run")
	}

	// A ${name} with no matching parameter degrades to a literal id
	// lookup of the inner text.
	name := normalizeRef(id)
	credID := name
	principal := run.Principal

	if param, ok := run.Parameter(name); run.InProgress() && ok {
		credID = param.CredentialID
		if !param.IsDefault {
			if param.UserID == "" {
				return nil, credErrors.Invalidf("parameter %q was user-supplied but names no user", name)
			}
			principal = permissions.Principal{ID: param.UserID}
		}
	}

	c, err := b.lookup(ctx, typeTag, credID, run, principal, reqs)
	if err != nil {
		return nil, err
	}

	if run.InProgress() && b.ledger != nil {
		b.ledger.TrackRun(c, run.Job.FullName(), run.ID)
	}
	return b.forRun(c, typeTag, run)
}

func (b *Binder) lookup(ctx context.Context, typeTag, credID string, run *Run, principal permissions.Principal, reqs []domain.Requirement) (credentials.Credential, error) {
	results, err := b.engine.Lookup(ctx, resolve.Query{
		Type:         typeTag,
		Context:      run.Job,
		Principal:    principal,
		Requirements: reqs,
		Matcher:      credentials.ByID(credID),
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, credErrors.NotFoundf("no credential %q visible to %q from %q", credID, principal.ID, run.Job.FullName())
	}
	return results[0], nil
}

// forRun lets run-contextual credentials specialise themselves. The
// specialised credential is discarded if it changed type.
func (b *Binder) forRun(c credentials.Credential, typeTag string, run *Run) (credentials.Credential, error) {
	rc, ok := c.(credentials.RunContextual)
	if !ok {
		return c, nil
	}
	specialised, err := rc.ForRun(run)
	if err != nil {
		return nil, credErrors.Wrap(credErrors.InvalidArgument, err, "contextualising credential %q", c.ID())
	}
	if specialised == nil {
		return c, nil
	}
	if specialised.TypeTag() != typeTag {
		b.logger.Warn("discarding run form of credential %q: type %s, want %s", c.ID(), specialised.TypeTag(), typeTag)
		return c, nil
	}
	return specialised, nil
}
