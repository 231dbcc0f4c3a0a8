package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidThread  = nodex.ErrInvalidThread
)

type Config struct {
	// MaxHops bounds specialist activations per run.
	MaxHops int
	// Guard screens input before routing; nil disables it.
	Guard   contractx.Guard
	Refusal string
	Hooks   nodex.Hooks
	// OnRun is called after every HandleMessage.
	OnRun func(out nodex.GraphOutput, elapsed time.Duration, err error)
}

type Orchestrator struct {
	store  statex.Store
	models contractx.Registry
	guard  contractx.Guard

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	maxHops int
	refusal string
	hooks   nodex.Hooks
	onRun   func(nodex.GraphOutput, time.Duration, error)
	locks   *threadLocks

	now func() time.Time
}

func New(store statex.Store, models contractx.Registry, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if models.Classifier() == nil {
		return nil, errors.New("classifier is required")
	}

	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = nodex.DefaultMaxHops
	}
	refusal := strings.TrimSpace(cfg.Refusal)
	if refusal == "" {
		refusal = "I'm sorry, I can't help with that request."
	}

	o := &Orchestrator{
		store:   store,
		models:  models,
		guard:   cfg.Guard,
		maxHops: maxHops,
		refusal: refusal,
		hooks:   cfg.Hooks,
		onRun:   cfg.OnRun,
		locks:   newThreadLocks(),
		now:     time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one Router/Specialist cycle for a user message. Runs on
// the same thread are serialized; nothing is persisted when the run fails.
func (o *Orchestrator) HandleMessage(ctx context.Context, threadID string, identity int64, text string) (nodex.GraphOutput, error) {
	unlock := o.locks.lock(strings.TrimSpace(threadID))
	defer unlock()

	start := time.Now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ThreadID: threadID,
		Identity: identity,
		Text:     text,
	})
	if o.onRun != nil {
		o.onRun(out, time.Since(start), err)
	}
	if err != nil {
		return nodex.GraphOutput{}, err
	}
	return out, nil
}

// Thread returns the last checkpoint of a thread.
func (o *Orchestrator) Thread(ctx context.Context, threadID string) (*statex.SessionState, error) {
	return o.store.Load(ctx, strings.TrimSpace(threadID))
}

func (o *Orchestrator) DeleteThread(ctx context.Context, threadID string) error {
	threadID = strings.TrimSpace(threadID)
	unlock := o.locks.lock(threadID)
	defer unlock()
	return o.store.Delete(ctx, threadID)
}

// threadLocks hands out one mutex per active thread id.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (t *threadLocks) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &threadLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
