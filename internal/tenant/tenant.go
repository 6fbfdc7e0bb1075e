// Package tenant owns the TimelineId -> Timeline mapping for one
// tenant, its activation state machine, and the operations (create,
// branch, load, GC) that must stay crash-safe across the tenant
// directory on disk.
package tenant

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/logging"
	"github.com/pagevault/pageserver/internal/metrics"
	"github.com/pagevault/pageserver/internal/remoteobj"
	"github.com/pagevault/pageserver/internal/tenantconf"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/timeline"
)

// State is the tenant activation state machine named in the store's
// concurrency design: Loading/Attaching feed into Activating(from),
// which feeds into Active; Stopping is reachable only from Active,
// Broken from anywhere.
type State int

const (
	StateLoading State = iota
	StateAttaching
	StateActivating
	StateActive
	StateStopping
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateAttaching:
		return "Attaching"
	case StateActivating:
		return "Activating"
	case StateActive:
		return "Active"
	case StateStopping:
		return "Stopping"
	case StateBroken:
		return "Broken"
	default:
		return "Unknown"
	}
}

// Config bundles the dependencies a Tenant needs to construct and
// activate its timelines.
type Config struct {
	TenantID ids.TenantID
	RootDir  string
	Conf     tenantconf.TenantConf
	Remote   remoteobj.Client
	Metrics  *metrics.Collector
	Logger   *logging.Logger
	Fatal    *FatalReporter
}

// Tenant owns every timeline under one tenant id.
type Tenant struct {
	TenantID ids.TenantID
	RootDir  string
	conf     tenantconf.TenantConf
	remote   remoteobj.Client
	metrics  *metrics.Collector
	logger   *logging.Logger
	fatal    *FatalReporter

	mu             sync.Mutex
	stateCh        chan struct{}
	state          State
	activatingFrom State
	brokenReason   string
	timelines      map[ids.TimelineID]*timeline.Timeline

	// gcMu is the GC critical-section lock: it serializes GC runs
	// against branch creation so a branch's start_lsn validation
	// can't be invalidated mid-check by a concurrently advancing
	// cutoff. It is never acquired while holding mu.
	gcMu sync.Mutex
}

// New constructs a Tenant in Loading state with no timelines.
func New(cfg Config) *Tenant {
	return &Tenant{
		TenantID:  cfg.TenantID,
		RootDir:   cfg.RootDir,
		conf:      cfg.Conf,
		remote:    cfg.Remote,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		fatal:     cfg.Fatal,
		state:     StateLoading,
		stateCh:   make(chan struct{}),
		timelines: make(map[ids.TimelineID]*timeline.Timeline),
	}
}

// State returns the tenant's current state.
func (t *Tenant) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Activate moves the tenant from Loading or Attaching through
// Activating to Active, activating every loaded timeline along the
// way. Failure to activate a timeline moves the tenant to Broken and
// reports through the fatal reporter, matching the "activation
// failure is fatal to the tenant" design.
func (t *Tenant) Activate(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case StateLoading:
		t.activatingFrom = StateLoading
	case StateAttaching:
		t.activatingFrom = StateAttaching
	default:
		err := &pverrors.InvalidStateTransitionError{From: t.state.String(), To: StateActivating.String()}
		t.mu.Unlock()
		return err
	}
	t.state = StateActivating
	timelines := make([]*timeline.Timeline, 0, len(t.timelines))
	for _, tl := range t.timelines {
		timelines = append(timelines, tl)
	}
	t.mu.Unlock()

	for _, tl := range timelines {
		if err := tl.Activate(); err != nil {
			t.setBroken(errors.Wrapf(err, "tenant: activate timeline %s", tl.TimelineID).Error())
			return errors.Wrapf(err, "tenant %s: activation failed", t.TenantID)
		}
	}

	t.mu.Lock()
	t.state = StateActive
	close(t.stateCh)
	t.mu.Unlock()
	return nil
}

// WaitForActive blocks until the tenant reaches Active or Broken,
// whichever it settles on first.
func (t *Tenant) WaitForActive(ctx context.Context) error {
	t.mu.Lock()
	state := t.state
	ch := t.stateCh
	t.mu.Unlock()

	if state == StateActive || state == StateBroken || state == StateStopping {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetStopping moves the tenant to Stopping. Only legal from Active.
func (t *Tenant) SetStopping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return &pverrors.InvalidStateTransitionError{From: t.state.String(), To: StateStopping.String()}
	}
	t.state = StateStopping
	return nil
}

// setBroken moves the tenant to Broken from any state and reports the
// failure through the fatal reporter if one is configured.
func (t *Tenant) setBroken(reason string) {
	t.mu.Lock()
	t.state = StateBroken
	t.brokenReason = reason
	if t.stateCh != nil {
		select {
		case <-t.stateCh:
		default:
			close(t.stateCh)
		}
	}
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Errorf("tenant %s broken: %s", t.TenantID, reason)
	}
	if t.fatal != nil {
		t.fatal.Report(errors.Newf("tenant %s broken: %s", t.TenantID, reason))
	}
}

// SetBroken is the exported form of setBroken, usable by callers
// outside this package that detect a fatal condition while operating
// on one of this tenant's timelines.
func (t *Tenant) SetBroken(reason string) {
	t.setBroken(reason)
}

// Get returns the timeline registered under id, or
// TimelineNotFoundError.
func (t *Tenant) Get(id ids.TimelineID) (*timeline.Timeline, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tl, ok := t.timelines[id]
	if !ok || tl == nil {
		return nil, &pverrors.TimelineNotFoundError{TimelineID: string(id)}
	}
	return tl, nil
}

// List returns every timeline currently registered, in no particular
// order.
func (t *Tenant) List() []*timeline.Timeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*timeline.Timeline, 0, len(t.timelines))
	for _, tl := range t.timelines {
		if tl != nil {
			out = append(out, tl)
		}
	}
	return out
}

func (t *Tenant) register(id ids.TimelineID, tl *timeline.Timeline) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.timelines[id]; ok {
		return &pverrors.TimelineAlreadyExistsError{TimelineID: string(id)}
	}
	t.timelines[id] = tl
	return nil
}

func (t *Tenant) unregister(id ids.TimelineID) {
	t.mu.Lock()
	delete(t.timelines, id)
	t.mu.Unlock()
}
