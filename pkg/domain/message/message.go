// Package message defines the Message bounded context.
// A Message is a thin mutable projection of a direct-message item reported
// by the wrapped private-API client. Identity is immutable; other fields
// change only through Patch with fresh server data, under the entity lock:
// realtime pushes patch on the wrapper's goroutine while the gateway and
// console read concurrently.
package message

import (
	"context"
	"sync"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/igclient"
)

// ---------------------------------------------------------------------------
// Actions port — the slice of the client facade a message delegates to
// ---------------------------------------------------------------------------

// Actions is implemented by the client facade. Command methods on Message
// delegate here; the facade forwards to the wrapped private-API client.
type Actions interface {
	SendText(ctx context.Context, threadID domain.EntityID, text string) (*Message, error)
	React(ctx context.Context, threadID, itemID domain.EntityID, emoji string) error
	Unsend(ctx context.Context, threadID, itemID domain.EntityID) error
	MarkSeen(ctx context.Context, threadID, itemID domain.EntityID) error
}

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// Media is an image or video attachment. Immutable once projected.
type Media struct {
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	IsVideo bool   `json:"is_video,omitempty"`
}

// Voice is a voice-message attachment. Immutable once projected.
type Voice struct {
	URL        string `json:"url"`
	DurationMS int    `json:"duration_ms"`
}

// Reaction is one emoji reaction left on a message.
type Reaction struct {
	Emoji    string          `json:"emoji"`
	SenderID domain.EntityID `json:"sender_id"`
}

// ---------------------------------------------------------------------------
// Message entity
// ---------------------------------------------------------------------------

// Message projects one direct-message item. Created when a realtime event or
// a sent-message confirmation arrives; never explicitly destroyed (cache
// eviction policy belongs to the cache owner).
type Message struct {
	id domain.EntityID // item id, immutable

	mu            sync.RWMutex
	chatID        domain.EntityID
	authorID      domain.EntityID
	kind          domain.MessageKind
	text          string
	timestamp     domain.Timestamp
	clientContext string
	media         *Media
	voice         *Voice
	reactions     []Reaction

	actions Actions
}

// FromPayload projects a wrapper item payload into a Message.
func FromPayload(p igclient.ItemPayload, actions Actions) *Message {
	m := &Message{
		id:      domain.EntityID(p.ItemID),
		actions: actions,
	}
	m.apply(p)
	return m
}

// ID returns the immutable item identity.
func (m *Message) ID() domain.EntityID { return m.id }

// Patch overwrites mutable fields from fresh server data. The payload must
// carry the same item id; anything else is a caller bug.
func (m *Message) Patch(p igclient.ItemPayload) error {
	if domain.EntityID(p.ItemID) != m.id {
		return ErrIdentityMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(p)
	return nil
}

func (m *Message) apply(p igclient.ItemPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(p)
}

// applyLocked requires m.mu held. Attachments and reactions are freshly
// allocated so snapshots handed out earlier never alias a rewrite.
func (m *Message) applyLocked(p igclient.ItemPayload) {
	m.chatID = domain.EntityID(p.ThreadID)
	m.authorID = domain.EntityID(p.UserPK)
	m.kind = domain.NormalizeKind(p.ItemType)
	m.text = p.Text
	m.timestamp = domain.TimestampFromUnixMicro(p.TimestampUS)
	m.clientContext = p.ClientContext

	m.media = nil
	if p.Media != nil {
		m.media = &Media{
			URL:     p.Media.URL,
			Width:   p.Media.Width,
			Height:  p.Media.Height,
			IsVideo: p.Media.IsVideo,
		}
	}
	m.voice = nil
	if p.Voice != nil {
		m.voice = &Voice{URL: p.Voice.URL, DurationMS: p.Voice.DurationMS}
	}
	m.reactions = nil
	for _, r := range p.Reactions {
		m.reactions = append(m.reactions, Reaction{
			Emoji:    r.Emoji,
			SenderID: domain.EntityID(r.SenderPK),
		})
	}
}

// ---------------------------------------------------------------------------
// Read accessors — snapshot reads under the entity lock
// ---------------------------------------------------------------------------

// ChatID returns the owning thread id.
func (m *Message) ChatID() domain.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chatID
}

// AuthorID returns the sender's user pk.
func (m *Message) AuthorID() domain.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authorID
}

// Kind returns the item kind.
func (m *Message) Kind() domain.MessageKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// Text returns the message text; empty for kinds without text.
func (m *Message) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// Timestamp returns the server-reported item timestamp.
func (m *Message) Timestamp() domain.Timestamp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timestamp
}

// ClientContext returns the sender-chosen send token, if any.
func (m *Message) ClientContext() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientContext
}

// Media returns the image/video attachment, or nil. The returned value is
// never mutated after projection.
func (m *Message) Media() *Media {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.media
}

// Voice returns the voice attachment, or nil.
func (m *Message) Voice() *Voice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.voice
}

// Reactions returns a copy of the reactions on this message.
func (m *Message) Reactions() []Reaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reaction, len(m.reactions))
	copy(out, m.reactions)
	return out
}

// HasText returns true for kinds that carry message text.
func (m *Message) HasText() bool { return m.Text() != "" }

// ---------------------------------------------------------------------------
// Command methods — delegate to the client facade
// ---------------------------------------------------------------------------

// Reply sends a text message into the same chat.
func (m *Message) Reply(ctx context.Context, text string) (*Message, error) {
	if m.actions == nil {
		return nil, ErrDetached
	}
	return m.actions.SendText(ctx, m.ChatID(), text)
}

// React leaves an emoji reaction on this message.
func (m *Message) React(ctx context.Context, emoji string) error {
	if m.actions == nil {
		return ErrDetached
	}
	return m.actions.React(ctx, m.ChatID(), m.id, emoji)
}

// Unsend removes this message for everyone. Only works on own messages;
// the wrapper reports the failure otherwise.
func (m *Message) Unsend(ctx context.Context) error {
	if m.actions == nil {
		return ErrDetached
	}
	return m.actions.Unsend(ctx, m.ChatID(), m.id)
}

// MarkSeen marks the thread as read up to this message.
func (m *Message) MarkSeen(ctx context.Context) error {
	if m.actions == nil {
		return ErrDetached
	}
	return m.actions.MarkSeen(ctx, m.ChatID(), m.id)
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// MessageError is a typed error for the message domain.
type MessageError string

func (e MessageError) Error() string { return string(e) }

const (
	ErrIdentityMismatch MessageError = "message: patch payload carries a different item id"
	ErrDetached         MessageError = "message: no client actions attached"
)
