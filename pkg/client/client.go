// Package client implements the facade over the wrapped private-API client.
// It owns the entity caches, projects realtime pushes into domain events, and
// backs the Actions ports that messages, chats, and users delegate to.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openig/igbot/pkg/cache"
	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/chat"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/domain/user"
	"github.com/openig/igbot/pkg/igclient"
	"github.com/openig/igbot/pkg/logger"
	"github.com/openig/igbot/pkg/media"
	"github.com/openig/igbot/pkg/session"
)

// Compile-time checks that the facade backs every Actions port.
var (
	_ message.Actions = (*Client)(nil)
	_ chat.Actions    = (*Client)(nil)
	_ user.Actions    = (*Client)(nil)
)

// Status is a point-in-time snapshot of the client for dashboards.
type Status struct {
	Username  string                  `json:"username"`
	UserID    domain.EntityID         `json:"user_id"`
	Connected bool                    `json:"connected"`
	State     domain.ConnectionStatus `json:"state"`
	Chats     int                     `json:"chats"`
	Users     int                     `json:"users"`
	Messages  int                     `json:"messages"`
}

// Client is the application facade. One instance per logged-in account.
type Client struct {
	api     igclient.API
	bus     domain.EventBus
	store   *session.Store
	fetcher *media.Fetcher

	// Chats, Users, Messages are the process-wide entity caches. Messages is
	// the flat item cache; each Chat additionally holds its own thread slice.
	Chats    *cache.Store[domain.EntityID, *chat.Chat]
	Users    *cache.Store[domain.EntityID, *user.User]
	Messages *cache.Store[domain.EntityID, *message.Message]

	mu       sync.RWMutex
	self     *user.User
	username string
	state    domain.ConnectionStatus
	// pendingSends maps client contexts of in-flight sends so the realtime
	// echo of an own message is reconciled instead of re-announced.
	pendingSends map[string]struct{}
}

// New creates a client facade. store may be nil to disable session
// persistence; fetcher may be nil to disable photo-by-URL sends.
func New(api igclient.API, bus domain.EventBus, store *session.Store, cfg *config.Config) *Client {
	var fetcher *media.Fetcher
	if cfg != nil {
		fetcher = media.NewFetcher(cfg.MediaTimeout(), cfg.Media.MaxBytes)
	}
	return &Client{
		api:          api,
		bus:          bus,
		store:        store,
		fetcher:      fetcher,
		Chats:        cache.New[domain.EntityID, *chat.Chat](),
		Users:        cache.New[domain.EntityID, *user.User](),
		Messages:     cache.New[domain.EntityID, *message.Message](),
		state:        domain.StatusDisconnected,
		pendingSends: make(map[string]struct{}),
	}
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// Login restores a persisted session for username when one exists, falling
// back to a credential login, then persists the (re)exported session blob.
func (c *Client) Login(ctx context.Context, username, password string) error {
	restored := false
	if c.store != nil {
		entry, err := c.store.Load(username)
		if err != nil {
			return err
		}
		if entry != nil {
			if err := c.api.RestoreSession(ctx, entry.Blob); err != nil {
				logger.WarnCF("client", "Session restore failed, falling back to credentials", map[string]interface{}{
					"username": username,
					"error":    err.Error(),
				})
			} else {
				restored = true
			}
		}
	}

	if !restored {
		if err := c.api.LoginWithCredentials(ctx, username, password); err != nil {
			return fmt.Errorf("client: login %s: %w", username, err)
		}
	}

	info, err := c.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("client: current user: %w", err)
	}
	self := user.FromInfo(*info, c)
	c.Users.Put(self.ID(), self)

	c.mu.Lock()
	c.self = self
	c.username = username
	c.mu.Unlock()

	if restored {
		c.bus.Publish(domain.NewEvent(domain.EventSessionRestored, self.ID(), username))
	} else if err := c.persistSession(ctx); err != nil {
		// A failed export is not fatal; next restart pays a credential login.
		logger.WarnCF("client", "Session export failed", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
	}

	logger.InfoCF("client", "Logged in", map[string]interface{}{
		"username": info.Username,
		"user_id":  self.ID().String(),
		"restored": restored,
	})
	return nil
}

func (c *Client) persistSession(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	blob, err := c.api.ExportSession(ctx)
	if err != nil {
		return err
	}
	c.mu.RLock()
	username := c.username
	selfID := c.selfIDLocked()
	c.mu.RUnlock()
	if err := c.store.Save(username, blob); err != nil {
		return err
	}
	c.bus.Publish(domain.NewEvent(domain.EventSessionSaved, selfID, username))
	return nil
}

// Logout ends the session and clears the persisted blob.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.api.Logout(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	username := c.username
	selfID := c.selfIDLocked()
	c.self = nil
	c.mu.Unlock()

	if c.store != nil && username != "" {
		if err := c.store.Delete(username); err != nil {
			return err
		}
	}
	c.bus.Publish(domain.NewEvent(domain.EventSessionCleared, selfID, username))
	return nil
}

// selfIDLocked requires c.mu held (read or write).
func (c *Client) selfIDLocked() domain.EntityID {
	if c.self == nil {
		return ""
	}
	return c.self.ID()
}

// Self returns the logged-in account, or nil before Login.
func (c *Client) Self() *user.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// SelfID returns the logged-in account id, or zero before Login.
func (c *Client) SelfID() domain.EntityID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfIDLocked()
}

// ---------------------------------------------------------------------------
// Realtime link
// ---------------------------------------------------------------------------

// Connect attaches the realtime handler, opens the push link, and primes the
// caches with an inbox sync.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(domain.StatusConnecting)
	c.api.OnRealtime(c.handleRealtime)
	if err := c.api.Connect(ctx); err != nil {
		c.setState(domain.StatusError)
		c.bus.Publish(domain.NewEvent(domain.EventClientError, c.SelfID(), err.Error()))
		return fmt.Errorf("client: connect: %w", err)
	}
	c.setState(domain.StatusConnected)
	c.bus.Publish(domain.NewEvent(domain.EventClientConnected, c.SelfID(), nil))

	if err := c.SyncInbox(ctx); err != nil {
		logger.WarnCF("client", "Initial inbox sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}

// Disconnect closes the push link. Caches survive for inspection.
func (c *Client) Disconnect(ctx context.Context) error {
	err := c.api.Disconnect(ctx)
	c.setState(domain.StatusDisconnected)
	c.bus.Publish(domain.NewEvent(domain.EventClientDisconnected, c.SelfID(), nil))
	return err
}

func (c *Client) setState(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// handleRealtime projects one push into the caches and the event bus.
// Delivery is at-least-once: a re-delivered add finds its item already cached
// and degrades to a patch, so message.created fires once per item.
func (c *Client) handleRealtime(ev igclient.RealtimeEvent) {
	switch ev.Op {
	case igclient.OpAdd, igclient.OpReplace:
		c.upsertItem(ev.Item, ev.Op == igclient.OpAdd)
	case igclient.OpRemove:
		c.removeItem(ev.Item)
	default:
		logger.WarnCF("client", "Unknown realtime op", map[string]interface{}{
			"op": string(ev.Op),
		})
	}
}

func (c *Client) upsertItem(p igclient.ItemPayload, announce bool) {
	itemID := domain.EntityID(p.ItemID)

	if existing, ok := c.Messages.Get(itemID); ok {
		if err := existing.Patch(p); err != nil {
			logger.ErrorCF("client", "Item patch failed", map[string]interface{}{
				"item":  p.ItemID,
				"error": err.Error(),
			})
		}
		c.touchChat(context.Background(), existing)
		return
	}

	msg := message.FromPayload(p, c)
	c.Messages.Put(itemID, msg)
	ch := c.touchChat(context.Background(), msg)
	if ch != nil {
		ch.Messages.Put(itemID, msg)
	}

	if !announce {
		return
	}

	// The realtime echo of an own in-flight send confirms delivery; it is not
	// a new inbound message.
	c.mu.Lock()
	_, inflight := c.pendingSends[p.ClientContext]
	if inflight {
		delete(c.pendingSends, p.ClientContext)
	}
	c.mu.Unlock()
	if inflight {
		c.bus.Publish(domain.NewEvent(domain.EventMessageSent, itemID, msg))
		return
	}

	c.bus.Publish(domain.NewEvent(domain.EventMessageCreated, itemID, msg))
}

func (c *Client) removeItem(p igclient.ItemPayload) {
	itemID := domain.EntityID(p.ItemID)
	msg, ok := c.Messages.Get(itemID)
	if !ok {
		return
	}
	c.Messages.Delete(itemID)
	if ch, found := c.Chats.Get(msg.ChatID()); found {
		ch.Messages.Delete(itemID)
	}
	c.bus.Publish(domain.NewEvent(domain.EventMessageUnsent, itemID, msg))
}

// touchChat returns the chat an item belongs to, fetching the thread on first
// sight so collectors and modules always see a projected Chat.
func (c *Client) touchChat(ctx context.Context, msg *message.Message) *chat.Chat {
	if ch, ok := c.Chats.Get(msg.ChatID()); ok {
		return ch
	}
	info, err := c.api.FetchThread(ctx, msg.ChatID().String())
	if err != nil {
		logger.WarnCF("client", "Thread fetch failed", map[string]interface{}{
			"thread": msg.ChatID().String(),
			"error":  err.Error(),
		})
		// Project a shell chat so the message still has a home.
		info = &igclient.ThreadInfo{ThreadID: msg.ChatID().String()}
	}
	return c.upsertThread(*info)
}

// ---------------------------------------------------------------------------
// Cache sync
// ---------------------------------------------------------------------------

// SyncInbox fetches the inbox and projects every thread, its participants,
// and its recent items into the caches.
func (c *Client) SyncInbox(ctx context.Context) error {
	threads, err := c.api.FetchInbox(ctx)
	if err != nil {
		return fmt.Errorf("client: fetch inbox: %w", err)
	}
	for _, t := range threads {
		c.upsertThread(t)
	}
	c.bus.Publish(domain.NewEvent(domain.EventInboxSynced, c.SelfID(), len(threads)))
	logger.InfoCF("client", "Inbox synced", map[string]interface{}{
		"threads": len(threads),
	})
	return nil
}

func (c *Client) upsertThread(t igclient.ThreadInfo) *chat.Chat {
	chatID := domain.EntityID(t.ThreadID)
	ch, ok := c.Chats.Get(chatID)
	if ok {
		if err := ch.Patch(t); err != nil {
			logger.ErrorCF("client", "Thread patch failed", map[string]interface{}{
				"thread": t.ThreadID,
				"error":  err.Error(),
			})
		}
	} else {
		ch = chat.FromThread(t, c, c.bus)
		c.Chats.Put(chatID, ch)
	}

	for _, info := range t.Users {
		c.upsertUser(info)
	}
	for _, item := range t.Items {
		itemID := domain.EntityID(item.ItemID)
		if existing, found := c.Messages.Get(itemID); found {
			existing.Patch(item)
			ch.Messages.Put(itemID, existing)
			continue
		}
		msg := message.FromPayload(item, c)
		c.Messages.Put(itemID, msg)
		ch.Messages.Put(itemID, msg)
	}
	return ch
}

func (c *Client) upsertUser(info igclient.UserInfo) *user.User {
	userID := domain.EntityID(info.PK)
	if existing, ok := c.Users.Get(userID); ok {
		existing.Patch(info)
		return existing
	}
	u := user.FromInfo(info, c)
	c.Users.Put(userID, u)
	return u
}

// Chat returns the cached chat for a thread id, fetching on a miss.
func (c *Client) Chat(ctx context.Context, chatID domain.EntityID) (*chat.Chat, error) {
	if ch, ok := c.Chats.Get(chatID); ok {
		return ch, nil
	}
	info, err := c.api.FetchThread(ctx, chatID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chat.ErrNotFound, chatID)
	}
	return c.upsertThread(*info), nil
}

// User returns the cached user for a pk, fetching on a miss.
func (c *Client) User(ctx context.Context, userID domain.EntityID) (*user.User, error) {
	if u, ok := c.Users.Get(userID); ok {
		return u, nil
	}
	info, err := c.api.FetchUser(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", user.ErrNotFound, userID)
	}
	return c.upsertUser(*info), nil
}

// Status returns a snapshot for dashboards and the console.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		Username:  c.username,
		UserID:    c.selfIDLocked(),
		Connected: c.api.IsConnected(),
		State:     c.state,
		Chats:     c.Chats.Len(),
		Users:     c.Users.Len(),
		Messages:  c.Messages.Len(),
	}
	if c.self != nil {
		st.Username = c.self.Username()
	}
	return st
}

// ---------------------------------------------------------------------------
// message.Actions / chat.Actions — sending
// ---------------------------------------------------------------------------

// SendText sends text into a thread and projects the confirmation.
func (c *Client) SendText(ctx context.Context, threadID domain.EntityID, text string) (*message.Message, error) {
	clientContext := c.newSendContext()
	item, err := c.api.SendText(ctx, threadID.String(), text, clientContext)
	if err != nil {
		c.abortSend(clientContext, threadID, err)
		return nil, fmt.Errorf("client: send text: %w", err)
	}
	return c.confirmSend(*item), nil
}

// SendPhoto uploads a JPEG into a thread.
func (c *Client) SendPhoto(ctx context.Context, threadID domain.EntityID, jpeg []byte) (*message.Message, error) {
	clientContext := c.newSendContext()
	item, err := c.api.SendPhoto(ctx, threadID.String(), jpeg, clientContext)
	if err != nil {
		c.abortSend(clientContext, threadID, err)
		return nil, fmt.Errorf("client: send photo: %w", err)
	}
	return c.confirmSend(*item), nil
}

// SendPhotoURL downloads an image and uploads it into a thread.
func (c *Client) SendPhotoURL(ctx context.Context, threadID domain.EntityID, url string) (*message.Message, error) {
	if c.fetcher == nil {
		return nil, ErrNoFetcher
	}
	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.SendPhoto(ctx, threadID, body)
}

// SendVoice uploads a voice clip into a thread.
func (c *Client) SendVoice(ctx context.Context, threadID domain.EntityID, audio []byte) (*message.Message, error) {
	clientContext := c.newSendContext()
	item, err := c.api.SendVoice(ctx, threadID.String(), audio, clientContext)
	if err != nil {
		c.abortSend(clientContext, threadID, err)
		return nil, fmt.Errorf("client: send voice: %w", err)
	}
	return c.confirmSend(*item), nil
}

func (c *Client) newSendContext() string {
	clientContext := uuid.NewString()
	c.mu.Lock()
	c.pendingSends[clientContext] = struct{}{}
	c.mu.Unlock()
	return clientContext
}

func (c *Client) abortSend(clientContext string, threadID domain.EntityID, err error) {
	c.mu.Lock()
	delete(c.pendingSends, clientContext)
	c.mu.Unlock()
	c.bus.Publish(domain.NewEvent(domain.EventMessageFailed, threadID, err.Error()))
}

// confirmSend projects a sent-item confirmation. If the realtime echo raced
// ahead, the item is already cached and only gets patched.
func (c *Client) confirmSend(item igclient.ItemPayload) *message.Message {
	itemID := domain.EntityID(item.ItemID)

	c.mu.Lock()
	_, pending := c.pendingSends[item.ClientContext]
	if pending {
		delete(c.pendingSends, item.ClientContext)
	}
	c.mu.Unlock()

	if existing, ok := c.Messages.Get(itemID); ok {
		existing.Patch(item)
		return existing
	}

	msg := message.FromPayload(item, c)
	c.Messages.Put(itemID, msg)
	if ch, ok := c.Chats.Get(msg.ChatID()); ok {
		ch.Messages.Put(itemID, msg)
	}
	if pending {
		c.bus.Publish(domain.NewEvent(domain.EventMessageSent, itemID, msg))
	}
	return msg
}

// ---------------------------------------------------------------------------
// message.Actions — per-item operations
// ---------------------------------------------------------------------------

// React leaves an emoji reaction on an item.
func (c *Client) React(ctx context.Context, threadID, itemID domain.EntityID, emoji string) error {
	return c.api.SendReaction(ctx, threadID.String(), itemID.String(), emoji)
}

// Unsend removes an own item and evicts it from the caches.
func (c *Client) Unsend(ctx context.Context, threadID, itemID domain.EntityID) error {
	if err := c.api.UnsendItem(ctx, threadID.String(), itemID.String()); err != nil {
		return err
	}
	if msg, ok := c.Messages.Get(itemID); ok {
		c.Messages.Delete(itemID)
		if ch, found := c.Chats.Get(threadID); found {
			ch.Messages.Delete(itemID)
		}
		c.bus.Publish(domain.NewEvent(domain.EventMessageUnsent, itemID, msg))
	}
	return nil
}

// MarkSeen marks a thread read up to an item.
func (c *Client) MarkSeen(ctx context.Context, threadID, itemID domain.EntityID) error {
	if err := c.api.MarkItemSeen(ctx, threadID.String(), itemID.String()); err != nil {
		return err
	}
	c.bus.Publish(domain.NewEvent(domain.EventMessageSeen, itemID, threadID))
	return nil
}

// ---------------------------------------------------------------------------
// chat.Actions — thread management
// ---------------------------------------------------------------------------

// Typing raises or clears the composing indicator on a thread.
func (c *Client) Typing(ctx context.Context, threadID domain.EntityID, active bool) error {
	return c.api.IndicateTyping(ctx, threadID.String(), active)
}

// ApproveThread accepts a pending thread request.
func (c *Client) ApproveThread(ctx context.Context, threadID domain.EntityID) error {
	return c.api.ApproveThread(ctx, threadID.String())
}

// MuteThread silences a thread.
func (c *Client) MuteThread(ctx context.Context, threadID domain.EntityID) error {
	return c.api.MuteThread(ctx, threadID.String())
}

// UnmuteThread restores thread notifications.
func (c *Client) UnmuteThread(ctx context.Context, threadID domain.EntityID) error {
	return c.api.UnmuteThread(ctx, threadID.String())
}

// LeaveThread exits a thread and drops it from the cache.
func (c *Client) LeaveThread(ctx context.Context, threadID domain.EntityID) error {
	if err := c.api.LeaveThread(ctx, threadID.String()); err != nil {
		return err
	}
	c.Chats.Delete(threadID)
	return nil
}

// ---------------------------------------------------------------------------
// user.Actions — relationships
// ---------------------------------------------------------------------------

// Follow requests to follow a user.
func (c *Client) Follow(ctx context.Context, userPK domain.EntityID) error {
	if err := c.api.Follow(ctx, userPK.String()); err != nil {
		return err
	}
	c.bus.Publish(domain.NewEvent(domain.EventUserFollowed, userPK, nil))
	return nil
}

// Unfollow stops following a user.
func (c *Client) Unfollow(ctx context.Context, userPK domain.EntityID) error {
	return c.api.Unfollow(ctx, userPK.String())
}

// Block blocks a user.
func (c *Client) Block(ctx context.Context, userPK domain.EntityID) error {
	if err := c.api.Block(ctx, userPK.String()); err != nil {
		return err
	}
	c.bus.Publish(domain.NewEvent(domain.EventUserBlocked, userPK, nil))
	return nil
}

// Unblock unblocks a user.
func (c *Client) Unblock(ctx context.Context, userPK domain.EntityID) error {
	if err := c.api.Unblock(ctx, userPK.String()); err != nil {
		return err
	}
	c.bus.Publish(domain.NewEvent(domain.EventUserUnblocked, userPK, nil))
	return nil
}

// DirectText opens (or reuses) the 1:1 thread with a user and sends text.
func (c *Client) DirectText(ctx context.Context, userPK domain.EntityID, text string) (*message.Message, error) {
	info, err := c.api.CreateThread(ctx, userPK.String())
	if err != nil {
		return nil, fmt.Errorf("client: create thread with %s: %w", userPK, err)
	}
	ch := c.upsertThread(*info)
	return c.SendText(ctx, ch.ID(), text)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// FacadeError is a typed error for the client facade.
type FacadeError string

func (e FacadeError) Error() string { return string(e) }

const (
	// ErrNoFetcher means the client was built without a media fetcher.
	ErrNoFetcher FacadeError = "client: media fetcher not configured"
)
