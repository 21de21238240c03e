package igclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Fake is an in-memory API implementation. It backs the test suites and the
// console's offline mode: sends echo back as confirmations, and EmitRealtime
// injects inbound pushes as if they came off the MQTT link.
type Fake struct {
	mu        sync.Mutex
	loggedIn  bool
	connected bool
	session   []byte
	handlers  []RealtimeHandler
	threads   map[string]*ThreadInfo
	users     map[string]*UserInfo
	self      UserInfo

	itemSeq atomic.Int64

	// Calls records every mutating operation, newest last, as
	// "op thread/user args" strings. Tests assert against it.
	Calls []string

	// FailNext, when non-nil, makes the next mutating call return this error.
	FailNext error
}

// NewFake creates a fake client logged out and disconnected.
func NewFake() *Fake {
	return &Fake{
		threads: make(map[string]*ThreadInfo),
		users:   make(map[string]*UserInfo),
		self: UserInfo{
			PK:       "1",
			Username: "igbot",
			FullName: "igbot (offline)",
		},
	}
}

// SeedThread installs a thread the fake will report from FetchInbox/FetchThread.
func (f *Fake) SeedThread(t ThreadInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := t
	f.threads[t.ThreadID] = &cp
}

// SeedUser installs a user the fake will report from FetchUser.
func (f *Fake) SeedUser(u UserInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.PK] = &cp
}

// EmitRealtime delivers an event to every registered realtime handler,
// synchronously on the caller's goroutine.
func (f *Fake) EmitRealtime(ev RealtimeEvent) {
	f.mu.Lock()
	handlers := make([]RealtimeHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (f *Fake) record(format string, args ...interface{}) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) failNext() error {
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return err
	}
	return nil
}

func (f *Fake) nextItemID() string {
	return fmt.Sprintf("item-%d", f.itemSeq.Add(1))
}

// --- Session lifecycle ---

func (f *Fake) LoginWithCredentials(ctx context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	f.loggedIn = true
	f.self.Username = username
	f.session = []byte("session:" + username)
	f.record("login %s", username)
	return nil
}

func (f *Fake) RestoreSession(ctx context.Context, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return ErrSessionExpired
	}
	f.loggedIn = true
	f.session = blob
	f.record("restore")
	return nil
}

func (f *Fake) ExportSession(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return nil, ErrNotLoggedIn
	}
	return f.session, nil
}

func (f *Fake) CurrentUser(ctx context.Context) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return nil, ErrNotLoggedIn
	}
	u := f.self
	return &u, nil
}

func (f *Fake) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = false
	f.connected = false
	f.session = nil
	f.record("logout")
	return nil
}

// --- Realtime link ---

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return ErrNotLoggedIn
	}
	if err := f.failNext(); err != nil {
		return err
	}
	f.connected = true
	f.record("connect")
	return nil
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.record("disconnect")
	return nil
}

func (f *Fake) OnRealtime(handler RealtimeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// --- Fetching ---

func (f *Fake) FetchInbox(ctx context.Context) ([]ThreadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return nil, ErrNotLoggedIn
	}
	out := make([]ThreadInfo, 0, len(f.threads))
	for _, t := range f.threads {
		out = append(out, *t)
	}
	return out, nil
}

func (f *Fake) FetchThread(ctx context.Context, threadID string) (*ThreadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *Fake) FetchUser(ctx context.Context, userPK string) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userPK]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) CreateThread(ctx context.Context, userPK string) (*ThreadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return nil, err
	}
	t := &ThreadInfo{
		ThreadID:       "dm:" + userPK,
		UserPKs:        []string{userPK},
		LastActivityUS: time.Now().UnixMicro(),
	}
	f.threads[t.ThreadID] = t
	f.record("create_thread %s", userPK)
	cp := *t
	return &cp, nil
}

// --- Direct operations ---

func (f *Fake) confirm(threadID, itemType, text, clientContext string) *ItemPayload {
	return &ItemPayload{
		ItemID:        f.nextItemID(),
		ThreadID:      threadID,
		UserPK:        f.self.PK,
		ItemType:      itemType,
		Text:          text,
		TimestampUS:   time.Now().UnixMicro(),
		ClientContext: clientContext,
	}
}

func (f *Fake) SendText(ctx context.Context, threadID, text, clientContext string) (*ItemPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return nil, err
	}
	f.record("send_text %s %q", threadID, text)
	return f.confirm(threadID, "text", text, clientContext), nil
}

func (f *Fake) SendPhoto(ctx context.Context, threadID string, jpeg []byte, clientContext string) (*ItemPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return nil, err
	}
	f.record("send_photo %s %dB", threadID, len(jpeg))
	return f.confirm(threadID, "media", "", clientContext), nil
}

func (f *Fake) SendVoice(ctx context.Context, threadID string, audio []byte, clientContext string) (*ItemPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return nil, err
	}
	f.record("send_voice %s %dB", threadID, len(audio))
	return f.confirm(threadID, "voice_media", "", clientContext), nil
}

func (f *Fake) SendReaction(ctx context.Context, threadID, itemID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	f.record("react %s %s %s", threadID, itemID, emoji)
	return nil
}

func (f *Fake) UnsendItem(ctx context.Context, threadID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unsend %s %s", threadID, itemID)
	return nil
}

func (f *Fake) MarkItemSeen(ctx context.Context, threadID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("seen %s %s", threadID, itemID)
	return nil
}

func (f *Fake) IndicateTyping(ctx context.Context, threadID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("typing %s %v", threadID, active)
	return nil
}

// --- Thread management ---

func (f *Fake) ApproveThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[threadID]; ok {
		t.Pending = false
	}
	f.record("approve %s", threadID)
	return nil
}

func (f *Fake) MuteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[threadID]; ok {
		t.Muted = true
	}
	f.record("mute %s", threadID)
	return nil
}

func (f *Fake) UnmuteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[threadID]; ok {
		t.Muted = false
	}
	f.record("unmute %s", threadID)
	return nil
}

func (f *Fake) LeaveThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, threadID)
	f.record("leave %s", threadID)
	return nil
}

// --- Relationships ---

func (f *Fake) Follow(ctx context.Context, userPK string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	f.record("follow %s", userPK)
	return nil
}

func (f *Fake) Unfollow(ctx context.Context, userPK string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unfollow %s", userPK)
	return nil
}

func (f *Fake) Block(ctx context.Context, userPK string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	f.record("block %s", userPK)
	return nil
}

func (f *Fake) Unblock(ctx context.Context, userPK string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unblock %s", userPK)
	return nil
}

// Verify interface compliance at compile time.
var _ API = (*Fake)(nil)
