package job

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tavlicon/lanes/id"
)

// progressBuffer bounds the updates in flight between a handler and the
// store. Updates beyond it are dropped; later ones supersede them anyway.
const progressBuffer = 64

type progressUpdate struct {
	current int
	total   int
	stage   string
}

// progressPump forwards progress updates from handler code to the store
// on its own goroutine. Handlers never call into the store directly, so
// a callback fired from inside a blocking computation cannot contend
// for the store lock.
type progressPump struct {
	ctx   context.Context
	store Store
	jobID id.JobID

	mu      sync.RWMutex
	closed  bool
	ch      chan progressUpdate
	done    chan struct{}
	dropped atomic.Int64
}

func newProgressPump(ctx context.Context, s Store, jobID id.JobID) *progressPump {
	p := &progressPump{
		ctx:   ctx,
		store: s,
		jobID: jobID,
		ch:    make(chan progressUpdate, progressBuffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *progressPump) run() {
	defer close(p.done)
	for u := range p.ch {
		// Progress after a terminal transition is refused by the store;
		// nothing useful can be done with the error here.
		_ = p.store.SetProgress(p.ctx, p.jobID, u.current, u.total, u.stage)
	}
}

// Progress implements Reporter.
func (p *progressPump) Progress(current, total int, stage string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- progressUpdate{current: current, total: total, stage: stage}:
	default:
		p.dropped.Add(1)
	}
}

// CancelRequested implements Reporter.
func (p *progressPump) CancelRequested() bool {
	j, err := p.store.GetJob(p.ctx, p.jobID)
	if err != nil {
		return false
	}
	return j.CancelRequested
}

// close stops accepting updates and waits until every accepted update
// reached the store, so progress events always precede the terminal one.
func (p *progressPump) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()
	<-p.done
}
