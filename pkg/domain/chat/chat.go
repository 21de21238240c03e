// Package chat defines the Chat bounded context.
// A Chat is a projection of a direct-message thread. Command methods
// delegate to the client facade; collectors created here observe the
// process-wide message-created stream scoped to this thread. Mutable fields
// live behind the entity lock: inbox syncs and realtime pushes patch on the
// wrapper's goroutine while the gateway and console read concurrently.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/openig/igbot/pkg/cache"
	"github.com/openig/igbot/pkg/collector"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/igclient"
)

// ---------------------------------------------------------------------------
// Actions port — the slice of the client facade a chat delegates to
// ---------------------------------------------------------------------------

// Actions is implemented by the client facade.
type Actions interface {
	SendText(ctx context.Context, threadID domain.EntityID, text string) (*message.Message, error)
	SendPhoto(ctx context.Context, threadID domain.EntityID, jpeg []byte) (*message.Message, error)
	SendPhotoURL(ctx context.Context, threadID domain.EntityID, url string) (*message.Message, error)
	SendVoice(ctx context.Context, threadID domain.EntityID, audio []byte) (*message.Message, error)
	Typing(ctx context.Context, threadID domain.EntityID, active bool) error
	MarkSeen(ctx context.Context, threadID, itemID domain.EntityID) error
	ApproveThread(ctx context.Context, threadID domain.EntityID) error
	MuteThread(ctx context.Context, threadID domain.EntityID) error
	UnmuteThread(ctx context.Context, threadID domain.EntityID) error
	LeaveThread(ctx context.Context, threadID domain.EntityID) error
}

// ---------------------------------------------------------------------------
// Chat entity
// ---------------------------------------------------------------------------

// Chat projects one thread. Mutable fields change only via Patch from fresh
// server data; Messages is the thread-scoped slice of the message cache.
type Chat struct {
	id domain.EntityID // thread id, immutable

	mu             sync.RWMutex
	title          string
	userIDs        []domain.EntityID
	pending        bool
	muted          bool
	lastActivityAt domain.Timestamp

	// Messages holds this thread's known messages in delivery order.
	// The store is concurrency-safe and assigned once at construction.
	Messages *cache.Store[domain.EntityID, *message.Message]

	actions Actions
	bus     domain.EventBus
}

// FromThread projects a wrapper thread payload into a Chat.
func FromThread(t igclient.ThreadInfo, actions Actions, bus domain.EventBus) *Chat {
	c := &Chat{
		id:       domain.EntityID(t.ThreadID),
		Messages: cache.New[domain.EntityID, *message.Message](),
		actions:  actions,
		bus:      bus,
	}
	c.apply(t)
	return c
}

// ID returns the immutable thread identity.
func (c *Chat) ID() domain.EntityID { return c.id }

// Patch overwrites mutable fields from fresh server data.
func (c *Chat) Patch(t igclient.ThreadInfo) error {
	if domain.EntityID(t.ThreadID) != c.id {
		return ErrIdentityMismatch
	}
	c.apply(t)
	return nil
}

// apply rewrites mutable state under the entity lock. The participant slice
// is freshly allocated so earlier snapshots never alias the rewrite.
func (c *Chat) apply(t igclient.ThreadInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = t.Title
	c.userIDs = make([]domain.EntityID, 0, len(t.UserPKs))
	for _, pk := range t.UserPKs {
		c.userIDs = append(c.userIDs, domain.EntityID(pk))
	}
	c.pending = t.Pending
	c.muted = t.Muted
	c.lastActivityAt = domain.TimestampFromUnixMicro(t.LastActivityUS)
}

// ---------------------------------------------------------------------------
// Read accessors — snapshot reads under the entity lock
// ---------------------------------------------------------------------------

// Title returns the thread title.
func (c *Chat) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

// UserIDs returns a copy of the participant pks.
func (c *Chat) UserIDs() []domain.EntityID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.EntityID, len(c.userIDs))
	copy(out, c.userIDs)
	return out
}

// Pending reports whether the thread awaits approval.
func (c *Chat) Pending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// Muted reports whether thread notifications are silenced.
func (c *Chat) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// LastActivityAt returns the server-reported last-activity timestamp.
func (c *Chat) LastActivityAt() domain.Timestamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivityAt
}

// IsGroup returns true for threads with more than one other participant.
func (c *Chat) IsGroup() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.userIDs) > 1
}

// ---------------------------------------------------------------------------
// Command methods — delegate to the client facade
// ---------------------------------------------------------------------------

// SendText sends a text message into this thread.
func (c *Chat) SendText(ctx context.Context, text string) (*message.Message, error) {
	if c.actions == nil {
		return nil, ErrDetached
	}
	return c.actions.SendText(ctx, c.id, text)
}

// SendPhoto uploads a JPEG into this thread.
func (c *Chat) SendPhoto(ctx context.Context, jpeg []byte) (*message.Message, error) {
	if c.actions == nil {
		return nil, ErrDetached
	}
	return c.actions.SendPhoto(ctx, c.id, jpeg)
}

// SendPhotoURL downloads an image by URL and uploads it into this thread.
func (c *Chat) SendPhotoURL(ctx context.Context, url string) (*message.Message, error) {
	if c.actions == nil {
		return nil, ErrDetached
	}
	return c.actions.SendPhotoURL(ctx, c.id, url)
}

// SendVoice uploads a voice clip into this thread.
func (c *Chat) SendVoice(ctx context.Context, audio []byte) (*message.Message, error) {
	if c.actions == nil {
		return nil, ErrDetached
	}
	return c.actions.SendVoice(ctx, c.id, audio)
}

// StartTyping raises the composing indicator.
func (c *Chat) StartTyping(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	return c.actions.Typing(ctx, c.id, true)
}

// StopTyping clears the composing indicator.
func (c *Chat) StopTyping(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	return c.actions.Typing(ctx, c.id, false)
}

// MarkSeen marks the thread read up to its latest known message.
func (c *Chat) MarkSeen(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	last, ok := c.Messages.Last()
	if !ok {
		return ErrNoMessages
	}
	return c.actions.MarkSeen(ctx, c.id, last.ID())
}

// Approve accepts a pending thread request.
func (c *Chat) Approve(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	if err := c.actions.ApproveThread(ctx, c.id); err != nil {
		return err
	}
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
	return nil
}

// Mute silences thread notifications.
func (c *Chat) Mute(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	if err := c.actions.MuteThread(ctx, c.id); err != nil {
		return err
	}
	c.mu.Lock()
	c.muted = true
	c.mu.Unlock()
	return nil
}

// Unmute restores thread notifications.
func (c *Chat) Unmute(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	if err := c.actions.UnmuteThread(ctx, c.id); err != nil {
		return err
	}
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
	return nil
}

// Leave exits the thread.
func (c *Chat) Leave(ctx context.Context) error {
	if c.actions == nil {
		return ErrDetached
	}
	return c.actions.LeaveThread(ctx, c.id)
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// NewCollector creates a message collector scoped to this thread.
// The caller owns the collector and must stop it (or rely on its bounds).
func (c *Chat) NewCollector(opts collector.Options) (*collector.Collector, error) {
	if c.bus == nil {
		return nil, ErrDetached
	}
	return collector.New(c.bus, c.id, opts), nil
}

// AwaitMessage blocks until the next message in this thread passes filter,
// or timeout elapses. It runs a single-use collector under the hood.
func (c *Chat) AwaitMessage(ctx context.Context, filter collector.Filter, timeout time.Duration) (*message.Message, error) {
	col, err := c.NewCollector(collector.Options{Filter: filter})
	if err != nil {
		return nil, err
	}
	defer col.Stop(domain.StopCleanup)
	return col.AwaitNext(ctx, nil, timeout)
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// ChatError is a typed error for the chat domain.
type ChatError string

func (e ChatError) Error() string { return string(e) }

const (
	ErrIdentityMismatch ChatError = "chat: patch payload carries a different thread id"
	ErrDetached         ChatError = "chat: no client actions attached"
	ErrNoMessages       ChatError = "chat: no messages known for this thread"
	ErrNotFound         ChatError = "chat: thread not found"
)
