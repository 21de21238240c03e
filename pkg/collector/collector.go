// Package collector implements the bounded, filtered message accumulator.
// A Collector observes the message-created event stream, keeps the subset of
// messages belonging to one chat that pass a caller-supplied filter, and
// stops when a count, total-time, or idle bound fires — or when told to.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openig/igbot/pkg/cache"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
)

// ---------------------------------------------------------------------------
// Filter and options
// ---------------------------------------------------------------------------

// Filter decides whether a message is accepted. It may block (evaluations
// are serialized per collector). A non-nil error is surfaced on the error
// signal; it neither collects the message nor stops the collector.
type Filter func(*message.Message) (bool, error)

// AcceptAll is the default filter.
func AcceptAll(*message.Message) (bool, error) { return true, nil }

// Options configures a Collector. All fields are optional.
type Options struct {
	// Filter decides acceptance; nil accepts everything.
	Filter Filter
	// Max stops the collector with reason "limit" once this many messages
	// are collected. Zero means unbounded.
	Max int
	// Time stops the collector with reason "time" this long after
	// construction. Zero means no total-time bound.
	Time time.Duration
	// Idle stops the collector with reason "idle" when no new message is
	// collected within the window; the window restarts on every collect.
	// Zero means no idle bound.
	Idle time.Duration
	// Dispose controls whether all signal observers are detached after the
	// end signal. Nil means true; set to a false pointer to let late
	// observers keep reading final state through the accessors.
	Dispose *bool
}

func (o Options) filterOrDefault() Filter {
	if o.Filter == nil {
		return AcceptAll
	}
	return o.Filter
}

func (o Options) disposeOrDefault() bool {
	if o.Dispose == nil {
		return true
	}
	return *o.Dispose
}

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

// Collector accumulates messages for a single chat. Create one with New;
// it detaches from the event stream and releases its timers exactly once,
// when it stops.
type Collector struct {
	id     domain.EntityID
	chatID domain.EntityID
	opts   Options
	bus    domain.EventBus

	// evalMu serializes filter evaluations. The event source may deliver
	// from multiple goroutines; collected order is delivery order.
	evalMu sync.Mutex

	mu          sync.Mutex
	ended       bool
	endReason   domain.StopReason
	collected   *cache.Store[domain.EntityID, *message.Message]
	lastCollect time.Time
	timeTimer   *time.Timer
	idleTimer   *time.Timer
	unsubscribe func()

	subSeq      int
	collectSubs map[int]func(*message.Message)
	endSubs     map[int]func(*cache.Store[domain.EntityID, *message.Message], domain.StopReason)
	errorSubs   map[int]func(error)
}

// New creates a collector scoped to chatID and subscribes it to the
// message-created stream on bus. Timers for the Time and Idle bounds are
// armed immediately.
func New(bus domain.EventBus, chatID domain.EntityID, opts Options) *Collector {
	if opts.Max < 0 {
		opts.Max = 0
	}

	c := &Collector{
		id:          domain.NewID(),
		chatID:      chatID,
		opts:        opts,
		bus:         bus,
		collected:   cache.New[domain.EntityID, *message.Message](),
		lastCollect: time.Now(),
		collectSubs: make(map[int]func(*message.Message)),
		endSubs:     make(map[int]func(*cache.Store[domain.EntityID, *message.Message], domain.StopReason)),
		errorSubs:   make(map[int]func(error)),
	}

	c.unsubscribe = bus.Subscribe(domain.EventMessageCreated, func(ev domain.Event) {
		msg, ok := ev.Payload().(*message.Message)
		if !ok {
			return
		}
		c.handle(msg)
	})

	if opts.Time > 0 {
		c.timeTimer = time.AfterFunc(opts.Time, func() { c.Stop(domain.StopTime) })
	}
	if opts.Idle > 0 {
		c.idleTimer = time.AfterFunc(opts.Idle, c.idleExpired)
	}

	bus.Publish(domain.NewEvent(domain.EventCollectorStarted, c.id, map[string]interface{}{
		"chat_id": chatID.String(),
		"max":     opts.Max,
		"time_ms": opts.Time.Milliseconds(),
		"idle_ms": opts.Idle.Milliseconds(),
	}))

	return c
}

// ID returns the collector's identity.
func (c *Collector) ID() domain.EntityID { return c.id }

// ChatID returns the target chat.
func (c *Collector) ChatID() domain.EntityID { return c.chatID }

// ---------------------------------------------------------------------------
// Event handling
// ---------------------------------------------------------------------------

func (c *Collector) handle(msg *message.Message) {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	c.mu.Lock()
	if c.ended || msg.ChatID() != c.chatID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	accepted, err := c.opts.filterOrDefault()(msg)
	if err != nil {
		c.emitError(&FilterError{MessageID: msg.ID(), Err: err})
		return
	}
	if !accepted {
		// Rejection is silent: no state change, no idle reset.
		return
	}

	c.mu.Lock()
	if c.ended {
		// The collector ended while the filter was evaluating; the result
		// is discarded.
		c.mu.Unlock()
		return
	}
	c.collected.Put(msg.ID(), msg)
	c.lastCollect = time.Now()
	count := c.collected.Len()
	subs := snapshotSubs(c.collectSubs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}

	if c.opts.Max > 0 && count >= c.opts.Max {
		c.Stop(domain.StopLimit)
	}
}

// idleExpired fires when the idle timer elapses. A collect that slipped in
// since the timer was armed re-arms it for the remainder instead of ending.
func (c *Collector) idleExpired() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	since := time.Since(c.lastCollect)
	if since < c.opts.Idle {
		c.idleTimer.Reset(c.opts.Idle - since)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Stop(domain.StopIdle)
}

// ---------------------------------------------------------------------------
// Stop contract
// ---------------------------------------------------------------------------

// Stop ends the collector. Idempotent: the second and later calls are no-ops
// and produce no second end signal. Timers are cancelled, the stream
// subscription released, and the end signal emitted with the full collected
// mapping. With dispose enabled (the default) every signal observer is then
// detached.
func (c *Collector) Stop(reason domain.StopReason) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.endReason = reason
	if c.timeTimer != nil {
		c.timeTimer.Stop()
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	endSubs := snapshotSubs(c.endSubs)
	collected := c.collected
	count := collected.Len()
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	for _, fn := range endSubs {
		fn(collected, reason)
	}

	if c.opts.disposeOrDefault() {
		c.mu.Lock()
		c.collectSubs = make(map[int]func(*message.Message))
		c.endSubs = make(map[int]func(*cache.Store[domain.EntityID, *message.Message], domain.StopReason))
		c.errorSubs = make(map[int]func(error))
		c.mu.Unlock()
	}

	c.bus.Publish(domain.NewEvent(domain.EventCollectorStopped, c.id, map[string]interface{}{
		"chat_id":   c.chatID.String(),
		"reason":    reason.String(),
		"collected": count,
	}))
}

// Ended reports whether the collector has stopped.
func (c *Collector) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Reason returns the end reason; empty while the collector is alive.
func (c *Collector) Reason() domain.StopReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endReason
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// OnCollect registers an observer for accepted messages. The returned
// function detaches it.
func (c *Collector) OnCollect(fn func(*message.Message)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.collectSubs[id] = fn
	return c.canceller(func() { delete(c.collectSubs, id) })
}

// OnEnd registers an observer for the end signal, which carries the full
// collected mapping and the stop reason.
func (c *Collector) OnEnd(fn func(collected *cache.Store[domain.EntityID, *message.Message], reason domain.StopReason)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.endSubs[id] = fn
	return c.canceller(func() { delete(c.endSubs, id) })
}

// OnError registers an observer for filter evaluation failures.
func (c *Collector) OnError(fn func(error)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.errorSubs[id] = fn
	return c.canceller(func() { delete(c.errorSubs, id) })
}

func (c *Collector) canceller(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			remove()
		})
	}
}

func (c *Collector) emitError(err error) {
	c.mu.Lock()
	subs := snapshotSubs(c.errorSubs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

func snapshotSubs[F any](m map[int]F) []F {
	out := make([]F, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

// ---------------------------------------------------------------------------
// Await-one-message
// ---------------------------------------------------------------------------

// AwaitNext blocks until a future collected message also passes the one-off
// extra filter, the optional timeout elapses (ErrAwaitTimeout), the collector
// ends first (ErrCollectorEnded), or ctx is cancelled. Already-collected
// history is never consumed. A nil extra filter matches every collect.
func (c *Collector) AwaitNext(ctx context.Context, extra Filter, timeout time.Duration) (*message.Message, error) {
	resultCh := make(chan *message.Message, 1)
	endCh := make(chan struct{})
	var endOnce sync.Once

	cancelCollect := c.OnCollect(func(m *message.Message) {
		if extra != nil {
			ok, err := extra(m)
			if err != nil || !ok {
				return
			}
		}
		select {
		case resultCh <- m:
		default:
		}
	})
	defer cancelCollect()

	cancelEnd := c.OnEnd(func(*cache.Store[domain.EntityID, *message.Message], domain.StopReason) {
		endOnce.Do(func() { close(endCh) })
	})
	defer cancelEnd()

	if c.Ended() {
		return nil, ErrCollectorEnded
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case m := <-resultCh:
		return m, nil
	case <-endCh:
		return nil, ErrCollectorEnded
	case <-timeoutCh:
		return nil, ErrAwaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Accessors — snapshot reads, never blocking, never mutating
// ---------------------------------------------------------------------------

// Collected returns the collected mapping. After the collector ends it is
// final; before that it keeps growing.
func (c *Collector) Collected() *cache.Store[domain.EntityID, *message.Message] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collected
}

// Len returns the number of collected messages.
func (c *Collector) Len() int { return c.Collected().Len() }

// Array returns the collected messages in delivery order.
func (c *Collector) Array() []*message.Message { return c.Collected().Array() }

// First returns the earliest collected message.
func (c *Collector) First() (*message.Message, bool) { return c.Collected().First() }

// Last returns the latest collected message.
func (c *Collector) Last() (*message.Message, bool) { return c.Collected().Last() }

// Random returns a uniformly random collected message.
func (c *Collector) Random() (*message.Message, bool) { return c.Collected().Random() }

// Find returns the first collected message satisfying pred.
func (c *Collector) Find(pred func(*message.Message) bool) (*message.Message, bool) {
	return c.Collected().Find(pred)
}

// FilterItems returns all collected messages satisfying pred.
func (c *Collector) FilterItems(pred func(*message.Message) bool) []*message.Message {
	return c.Collected().Filter(pred)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// CollectorError is a typed error for the collector domain.
type CollectorError string

func (e CollectorError) Error() string { return string(e) }

const (
	// ErrAwaitTimeout reports that AwaitNext's own timeout elapsed first.
	ErrAwaitTimeout CollectorError = "collector: await timed out before a matching message arrived"
	// ErrCollectorEnded reports that the collector ended before AwaitNext matched.
	ErrCollectorEnded CollectorError = "collector: ended before a matching message arrived"
)

// FilterError wraps a failure from a caller-supplied filter. It is surfaced
// on the error signal; the collector stays alive.
type FilterError struct {
	MessageID domain.EntityID
	Err       error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("collector: filter failed for item %s: %v", e.MessageID, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }
