// Package igclient defines the port to the externally supplied Instagram
// private-API wrapper. Protocol framing, device emulation, challenge/2FA
// handling and the MQTT/FBNS realtime transport all live behind this
// interface; igbot only consumes it. The embedding application supplies the
// real implementation; Fake exists for tests and offline operation.
package igclient

import "context"

// ---------------------------------------------------------------------------
// Wire payloads — the shapes the wrapper hands back
// ---------------------------------------------------------------------------

// UserInfo is the wrapper's projection of an Instagram account.
type UserInfo struct {
	PK             string `json:"pk"`
	Username       string `json:"username"`
	FullName       string `json:"full_name,omitempty"`
	IsPrivate      bool   `json:"is_private"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	ProfilePicURL  string `json:"profile_pic_url,omitempty"`
}

// ThreadInfo is the wrapper's projection of a direct-message thread.
type ThreadInfo struct {
	ThreadID       string        `json:"thread_id"`
	Title          string        `json:"thread_title,omitempty"`
	UserPKs        []string      `json:"user_pks"`
	Pending        bool          `json:"pending"`
	Muted          bool          `json:"muted"`
	LastActivityUS int64         `json:"last_activity_at"`
	Items          []ItemPayload `json:"items,omitempty"`
	Users          []UserInfo    `json:"users,omitempty"`
}

// MediaPayload carries an image or video attachment.
type MediaPayload struct {
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	IsVideo bool   `json:"is_video,omitempty"`
}

// VoicePayload carries a voice-message attachment.
type VoicePayload struct {
	URL        string `json:"url"`
	DurationMS int    `json:"duration_ms"`
}

// ReactionPayload carries a single emoji reaction on an item.
type ReactionPayload struct {
	Emoji    string `json:"emoji"`
	SenderPK string `json:"sender_pk"`
}

// ItemPayload is one direct-message item as reported by the wrapper,
// either from a realtime push or from a sent-message confirmation.
type ItemPayload struct {
	ItemID        string            `json:"item_id"`
	ThreadID      string            `json:"thread_id"`
	UserPK        string            `json:"user_pk"`
	ItemType      string            `json:"item_type"`
	Text          string            `json:"text,omitempty"`
	TimestampUS   int64             `json:"timestamp"`
	ClientContext string            `json:"client_context,omitempty"`
	Media         *MediaPayload     `json:"media,omitempty"`
	Voice         *VoicePayload     `json:"voice_media,omitempty"`
	Reactions     []ReactionPayload `json:"reactions,omitempty"`
}

// RealtimeOp classifies what a realtime push did to an item.
type RealtimeOp string

const (
	OpAdd     RealtimeOp = "add"
	OpReplace RealtimeOp = "replace"
	OpRemove  RealtimeOp = "remove"
)

// RealtimeEvent is one push delivered over the wrapper's MQTT/FBNS link.
// Delivery is at-least-once and not deduplicated.
type RealtimeEvent struct {
	Op   RealtimeOp  `json:"op"`
	Item ItemPayload `json:"item"`
}

// RealtimeHandler consumes realtime events. Handlers are invoked from the
// wrapper's receive loop and must not block for long.
type RealtimeHandler func(RealtimeEvent)

// ---------------------------------------------------------------------------
// API port
// ---------------------------------------------------------------------------

// API is the full surface igbot requires from the wrapped private-API client.
type API interface {
	// Session lifecycle
	LoginWithCredentials(ctx context.Context, username, password string) error
	RestoreSession(ctx context.Context, blob []byte) error
	ExportSession(ctx context.Context) ([]byte, error)
	CurrentUser(ctx context.Context) (*UserInfo, error)
	Logout(ctx context.Context) error

	// Realtime link
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	OnRealtime(handler RealtimeHandler)
	IsConnected() bool

	// Fetching
	FetchInbox(ctx context.Context) ([]ThreadInfo, error)
	FetchThread(ctx context.Context, threadID string) (*ThreadInfo, error)
	FetchUser(ctx context.Context, userPK string) (*UserInfo, error)
	CreateThread(ctx context.Context, userPK string) (*ThreadInfo, error)

	// Direct operations
	SendText(ctx context.Context, threadID, text, clientContext string) (*ItemPayload, error)
	SendPhoto(ctx context.Context, threadID string, jpeg []byte, clientContext string) (*ItemPayload, error)
	SendVoice(ctx context.Context, threadID string, audio []byte, clientContext string) (*ItemPayload, error)
	SendReaction(ctx context.Context, threadID, itemID, emoji string) error
	UnsendItem(ctx context.Context, threadID, itemID string) error
	MarkItemSeen(ctx context.Context, threadID, itemID string) error
	IndicateTyping(ctx context.Context, threadID string, active bool) error

	// Thread management
	ApproveThread(ctx context.Context, threadID string) error
	MuteThread(ctx context.Context, threadID string) error
	UnmuteThread(ctx context.Context, threadID string) error
	LeaveThread(ctx context.Context, threadID string) error

	// Relationships
	Follow(ctx context.Context, userPK string) error
	Unfollow(ctx context.Context, userPK string) error
	Block(ctx context.Context, userPK string) error
	Unblock(ctx context.Context, userPK string) error
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ClientError is a typed error for the wrapper boundary.
type ClientError string

func (e ClientError) Error() string { return string(e) }

const (
	ErrNotLoggedIn    ClientError = "igclient: not logged in"
	ErrSessionExpired ClientError = "igclient: session expired"
	ErrNotConnected   ClientError = "igclient: realtime link not connected"
	ErrThreadNotFound ClientError = "igclient: thread not found"
	ErrUserNotFound   ClientError = "igclient: user not found"
)
