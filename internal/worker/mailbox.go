package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/command"
	"github.com/roach88/swarmsync/internal/store"
)

// ErrClosed is returned for work submitted to a stopped mailbox.
var ErrClosed = errors.New("mailbox closed")

// Instance is one config or group instance and the kind it is stored as.
type Instance struct {
	Kind   string
	Target any
}

type result struct {
	val any
	err error
}

type job struct {
	ctx   context.Context
	fn    func(target any) (any, error)
	reply chan result
}

// Mailbox owns one instance. Every call runs on the mailbox goroutine in
// submission order, so the instance never sees concurrent access.
type Mailbox struct {
	id     string
	inst   Instance
	q      *queue[job]
	done   chan struct{}
	logger *zap.Logger
}

func newMailbox(id string, inst Instance, logger *zap.Logger) *Mailbox {
	return &Mailbox{
		id:     id,
		inst:   inst,
		q:      newQueue[job](),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("instance", id), zap.String("kind", inst.Kind)),
	}
}

// ID returns the instance id.
func (m *Mailbox) ID() string { return m.id }

// Do dispatches cmd to the instance and waits for the result.
func (m *Mailbox) Do(ctx context.Context, cmd command.Command) (any, error) {
	return m.call(ctx, func(target any) (any, error) {
		res, err := command.Dispatch(target, cmd)
		if err != nil {
			m.logger.Debug("command failed", zap.String("command", cmd.Kind()), zap.Error(err))
		}
		return res, err
	})
}

func (m *Mailbox) call(ctx context.Context, fn func(target any) (any, error)) (any, error) {
	reply := make(chan result, 1)
	if !m.q.push(job{ctx: ctx, fn: fn, reply: reply}) {
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-reply:
		return r.val, r.err
	}
}

// run is the single-writer loop. It returns nil once the mailbox is closed
// and drained, or the context error if ctx ends first.
func (m *Mailbox) run(ctx context.Context) error {
	defer close(m.done)
	for {
		if j, ok := m.q.tryPop(); ok {
			m.handle(j)
			continue
		}
		select {
		case <-ctx.Done():
			m.q.close()
			m.reject(ctx.Err())
			return ctx.Err()
		case <-m.q.wait():
			if m.q.drained() {
				return nil
			}
		}
	}
}

func (m *Mailbox) handle(j job) {
	if err := j.ctx.Err(); err != nil {
		j.reply <- result{err: err}
		return
	}
	val, err := j.fn(m.inst.Target)
	j.reply <- result{val: val, err: err}
}

func (m *Mailbox) reject(cause error) {
	for {
		j, ok := m.q.tryPop()
		if !ok {
			return
		}
		j.reply <- result{err: errors.Wrap(ErrClosed, cause.Error())}
	}
}

// stop closes the mailbox and waits for queued work to finish.
func (m *Mailbox) stop() {
	m.q.close()
	<-m.done
}

type dumpNeeder interface {
	NeedsDump() bool
}

// save writes the instance dump to st when it changed since the last dump,
// or always when force is set. It must run on the mailbox goroutine or
// after the mailbox has stopped.
func save(ctx context.Context, st *store.Store, id string, inst Instance, now time.Time, force bool) (bool, error) {
	if n, ok := inst.Target.(dumpNeeder); ok && !force && !n.NeedsDump() {
		return false, nil
	}
	res, err := command.Dispatch(inst.Target, command.Dump{})
	if err != nil {
		return false, errors.Wrapf(err, "dump %s", id)
	}
	if err := st.SaveDump(ctx, id, inst.Kind, res.([]byte), now); err != nil {
		return false, err
	}
	return true, nil
}
