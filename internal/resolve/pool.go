package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
)

// ErrPoolState is returned when a pool operation is not allowed in the pool's
// current state.
var ErrPoolState = errors.New("invalid pool state")

// State is the lifecycle of a pool.
type State int

const (
	StateEmpty State = iota
	StateStaged
	StateCommitting
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStaged:
		return "staged"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is the authoring intent of a staged entity.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
)

func (a Action) String() string {
	if a == ActionUpdate {
		return "update"
	}
	return "create"
}

// Entry is one staged entity.
type Entry struct {
	Action Action
	Ref    *graph.TopicRef
	Topic  *api.Topic
	// Before is the pre-image of an update, used to restore it on rollback.
	Before *api.Topic
	// Result is what the persistence service returned; nil until committed.
	Result *api.Topic
}

// Pool batches creates and updates into one all-or-nothing commit. Atomicity
// is provided by compensating writes: created topics are deleted and updated
// topics restored when any write fails.
type Pool struct {
	svc     api.PersistenceService
	state   State
	creates []*Entry
	updates []*Entry
}

// NewPool returns an empty pool committing to svc.
func NewPool(svc api.PersistenceService) *Pool {
	return &Pool{svc: svc}
}

func (p *Pool) State() State { return p.state }

// Len returns the number of staged entities.
func (p *Pool) Len() int { return len(p.creates) + len(p.updates) }

// Entries returns creates followed by updates, the commit order.
func (p *Pool) Entries() []*Entry {
	out := make([]*Entry, 0, p.Len())
	out = append(out, p.creates...)
	return append(out, p.updates...)
}

// StagedUpdate returns the update already queued for topic id.
func (p *Pool) StagedUpdate(id int64) (*Entry, bool) {
	for _, e := range p.updates {
		if e.Topic.ID == id {
			return e, true
		}
	}
	return nil, false
}

// StageCreate queues t to be created for ref.
func (p *Pool) StageCreate(ref *graph.TopicRef, t *api.Topic) error {
	return p.stage(&Entry{Action: ActionCreate, Ref: ref, Topic: t})
}

// StageUpdate queues t to replace before for ref.
func (p *Pool) StageUpdate(ref *graph.TopicRef, t, before *api.Topic) error {
	if t.ID == 0 {
		return fmt.Errorf("update for line %d has no topic id", ref.Line())
	}
	if _, ok := p.StagedUpdate(t.ID); ok {
		return fmt.Errorf("topic %d is already staged for update", t.ID)
	}
	return p.stage(&Entry{Action: ActionUpdate, Ref: ref, Topic: t, Before: before})
}

func (p *Pool) stage(e *Entry) error {
	if p.state != StateEmpty && p.state != StateStaged {
		return fmt.Errorf("%w: cannot stage in state %s", ErrPoolState, p.state)
	}
	if e.Action == ActionUpdate {
		p.updates = append(p.updates, e)
	} else {
		p.creates = append(p.creates, e)
	}
	p.state = StateStaged
	return nil
}

// Commit writes every staged entity: all creates, then all updates. On the
// first failure everything already written is compensated and the pool ends
// RolledBack. Once started, a commit is not interrupted by ctx cancellation.
func (p *Pool) Commit(ctx context.Context) error {
	switch p.state {
	case StateEmpty:
		p.state = StateCommitted
		return nil
	case StateStaged:
	default:
		return fmt.Errorf("%w: cannot commit in state %s", ErrPoolState, p.state)
	}

	ctx = context.WithoutCancel(ctx)
	logger := ctxlog.FromContext(ctx)
	p.state = StateCommitting

	for _, e := range p.Entries() {
		var (
			res *api.Topic
			err error
		)
		if e.Action == ActionCreate {
			res, err = p.svc.CreateTopic(ctx, e.Topic)
		} else {
			res, err = p.svc.UpdateTopic(ctx, e.Topic)
		}
		if err == nil && (res == nil || res.ID == 0) {
			err = errors.New("persistence service returned no topic id")
		}
		if err != nil {
			cause := fmt.Errorf("%w: %s topic %q (line %d): %w", diag.ErrPersistence, e.Action, e.Topic.Title, e.Ref.Line(), err)
			if rbErr := p.rollback(ctx); rbErr != nil {
				return errors.Join(cause, rbErr)
			}
			return cause
		}
		e.Result = res
	}

	p.state = StateCommitted
	logger.Debug("Pool committed.", "creates", len(p.creates), "updates", len(p.updates))
	return nil
}

// rollback compensates every entity that was written, newest first.
func (p *Pool) rollback(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	written := p.Entries()
	for i := len(written) - 1; i >= 0; i-- {
		e := written[i]
		if e.Result == nil {
			continue
		}
		var err error
		if e.Action == ActionCreate {
			err = p.svc.DeleteTopic(ctx, e.Result.ID)
		} else {
			_, err = p.svc.UpdateTopic(ctx, e.Before)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("rollback %s of topic %d: %w", e.Action, e.Result.ID, err))
		}
		e.Result = nil
	}

	p.state = StateRolledBack
	logger.Debug("Pool rolled back.", "entries", len(written), "failures", len(errs))
	return errors.Join(errs...)
}
