package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/igclient"
	"github.com/openig/igbot/pkg/infrastructure/eventbus"
	"github.com/openig/igbot/pkg/session"
)

func newTestClient(t *testing.T, fake *igclient.Fake) (*Client, domain.EventBus) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	cfg := config.Default()
	return New(fake, bus, nil, &cfg), bus
}

func loginAndConnect(t *testing.T, c *Client) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "botacct", "hunter2"))
	require.NoError(t, c.Connect(ctx))
}

func push(fake *igclient.Fake, op igclient.RealtimeOp, item igclient.ItemPayload) {
	fake.EmitRealtime(igclient.RealtimeEvent{Op: op, Item: item})
}

func inboundItem(itemID, threadID, userPK, text string) igclient.ItemPayload {
	return igclient.ItemPayload{
		ItemID:      itemID,
		ThreadID:    threadID,
		UserPK:      userPK,
		ItemType:    "text",
		Text:        text,
		TimestampUS: time.Now().UnixMicro(),
	}
}

func TestLoginWithCredentials(t *testing.T) {
	fake := igclient.NewFake()
	c, _ := newTestClient(t, fake)

	require.NoError(t, c.Login(context.Background(), "botacct", "hunter2"))

	require.NotNil(t, c.Self())
	assert.Equal(t, domain.EntityID("1"), c.SelfID())
	assert.Contains(t, fake.Calls, "login botacct")
}

func TestLoginRestoresPersistedSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := session.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	fake := igclient.NewFake()
	bus := eventbus.New()
	defer bus.Close()
	cfg := config.Default()

	// First login pays the credential path and persists the blob.
	c1 := New(fake, bus, store, &cfg)
	require.NoError(t, c1.Login(context.Background(), "botacct", "hunter2"))
	entry, err := store.Load("botacct")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// A new client restores instead of logging in again.
	fake2 := igclient.NewFake()
	c2 := New(fake2, bus, store, &cfg)
	require.NoError(t, c2.Login(context.Background(), "botacct", "hunter2"))
	assert.Contains(t, fake2.Calls, "restore")
	assert.NotContains(t, fake2.Calls, "login botacct")
}

func TestLoginFallsBackWhenRestoreFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := session.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Save("botacct", []byte("stale")))

	fake := igclient.NewFake()
	fake.FailNext = igclient.ErrSessionExpired
	bus := eventbus.New()
	defer bus.Close()
	cfg := config.Default()

	c := New(fake, bus, store, &cfg)
	require.NoError(t, c.Login(context.Background(), "botacct", "hunter2"))
	assert.Contains(t, fake.Calls, "login botacct")
}

func TestConnectSyncsInbox(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{
		ThreadID: "t1",
		Title:    "crew",
		UserPKs:  []string{"7", "8"},
		Users: []igclient.UserInfo{
			{PK: "7", Username: "alice"},
			{PK: "8", Username: "bob"},
		},
		Items: []igclient.ItemPayload{inboundItem("m1", "t1", "7", "yo")},
	})
	c, _ := newTestClient(t, fake)

	loginAndConnect(t, c)

	require.Equal(t, 1, c.Chats.Len())
	assert.Equal(t, 3, c.Users.Len(), "self plus both participants")
	assert.Equal(t, 1, c.Messages.Len())

	ch, ok := c.Chats.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "crew", ch.Title())
	assert.Equal(t, 1, ch.Messages.Len())
}

func TestRealtimeAddPublishesMessageCreated(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, bus := newTestClient(t, fake)

	var created []*message.Message
	bus.Subscribe(domain.EventMessageCreated, func(ev domain.Event) {
		created = append(created, ev.Payload().(*message.Message))
	})

	loginAndConnect(t, c)
	push(fake, igclient.OpAdd, inboundItem("m1", "t1", "7", "hello"))

	require.Len(t, created, 1)
	assert.Equal(t, domain.EntityID("m1"), created[0].ID())
	assert.Equal(t, "hello", created[0].Text())

	ch, ok := c.Chats.Get("t1")
	require.True(t, ok)
	assert.True(t, ch.Messages.Has("m1"))
}

func TestRealtimeRedeliveryDegradesToPatch(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, bus := newTestClient(t, fake)

	var created int
	bus.Subscribe(domain.EventMessageCreated, func(domain.Event) { created++ })

	loginAndConnect(t, c)
	item := inboundItem("m1", "t1", "7", "hello")
	push(fake, igclient.OpAdd, item)
	item.Text = "hello (edited)"
	push(fake, igclient.OpAdd, item)

	assert.Equal(t, 1, created, "at-least-once delivery announces once")
	msg, ok := c.Messages.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "hello (edited)", msg.Text())
}

func TestRealtimeRemoveEvictsAndAnnounces(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, bus := newTestClient(t, fake)

	var unsent int
	bus.Subscribe(domain.EventMessageUnsent, func(domain.Event) { unsent++ })

	loginAndConnect(t, c)
	push(fake, igclient.OpAdd, inboundItem("m1", "t1", "7", "oops"))
	push(fake, igclient.OpRemove, igclient.ItemPayload{ItemID: "m1", ThreadID: "t1"})

	assert.Equal(t, 1, unsent)
	assert.False(t, c.Messages.Has("m1"))
	ch, _ := c.Chats.Get("t1")
	assert.False(t, ch.Messages.Has("m1"))
}

func TestRealtimeUnknownThreadProjectsChat(t *testing.T) {
	fake := igclient.NewFake()
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	// Thread is not seeded: the fetch fails and a shell chat is projected.
	push(fake, igclient.OpAdd, inboundItem("m1", "t-unknown", "7", "hi"))

	ch, ok := c.Chats.Get("t-unknown")
	require.True(t, ok)
	assert.True(t, ch.Messages.Has("m1"))
}

func TestSendTextProjectsConfirmation(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, bus := newTestClient(t, fake)

	var created, sent int
	bus.Subscribe(domain.EventMessageCreated, func(domain.Event) { created++ })
	bus.Subscribe(domain.EventMessageSent, func(domain.Event) { sent++ })

	loginAndConnect(t, c)
	msg, err := c.SendText(context.Background(), "t1", "hi there")
	require.NoError(t, err)

	assert.Equal(t, "hi there", msg.Text())
	assert.Equal(t, c.SelfID(), msg.AuthorID())
	assert.True(t, c.Messages.Has(msg.ID()))
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, created, "own sends are not inbound messages")
}

func TestOwnRealtimeEchoIsNotAnnouncedAsCreated(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, bus := newTestClient(t, fake)

	var created int
	bus.Subscribe(domain.EventMessageCreated, func(domain.Event) { created++ })

	loginAndConnect(t, c)
	msg, err := c.SendText(context.Background(), "t1", "hi")
	require.NoError(t, err)

	// Server echoes the sent item over the realtime link.
	push(fake, igclient.OpAdd, igclient.ItemPayload{
		ItemID:        msg.ID().String(),
		ThreadID:      "t1",
		UserPK:        "1",
		ItemType:      "text",
		Text:          "hi",
		TimestampUS:   time.Now().UnixMicro(),
		ClientContext: msg.ClientContext(),
	})

	assert.Equal(t, 0, created)
}

func TestSendTextFailurePublishesMessageFailed(t *testing.T) {
	fake := igclient.NewFake()
	c, bus := newTestClient(t, fake)

	var failed int
	bus.Subscribe(domain.EventMessageFailed, func(domain.Event) { failed++ })

	loginAndConnect(t, c)
	fake.FailNext = igclient.ErrNotConnected
	_, err := c.SendText(context.Background(), "t1", "hi")
	require.Error(t, err)
	assert.Equal(t, 1, failed)
}

func TestUnsendEvictsFromCaches(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	msg, err := c.SendText(context.Background(), "t1", "take that back")
	require.NoError(t, err)

	require.NoError(t, msg.Unsend(context.Background()))
	assert.False(t, c.Messages.Has(msg.ID()))
	assert.Contains(t, fake.Calls, "unsend t1 "+msg.ID().String())
}

func TestDirectTextOpensThread(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedUser(igclient.UserInfo{PK: "7", Username: "alice"})
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	u, err := c.User(context.Background(), "7")
	require.NoError(t, err)

	msg, err := u.SendText(context.Background(), "knock knock")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityID("dm:7"), msg.ChatID())
	assert.True(t, c.Chats.Has("dm:7"))
}

func TestChatFetchesOnMiss(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", Title: "late", UserPKs: []string{"7"}})
	c, _ := newTestClient(t, fake)
	require.NoError(t, c.Login(context.Background(), "botacct", "hunter2"))

	ch, err := c.Chat(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "late", ch.Title())

	_, err = c.Chat(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLeaveThreadDropsChat(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	ch, err := c.Chat(context.Background(), "t1")
	require.NoError(t, err)
	require.NoError(t, ch.Leave(context.Background()))
	assert.False(t, c.Chats.Has("t1"))
}

func TestStatusSnapshot(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	st := c.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, domain.StatusConnected, st.State)
	assert.Equal(t, domain.EntityID("1"), st.UserID)
	assert.Equal(t, 1, st.Chats)
}

func TestCollectorSeesRealtimeMessages(t *testing.T) {
	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{ThreadID: "t1", UserPKs: []string{"7"}})
	c, _ := newTestClient(t, fake)
	loginAndConnect(t, c)

	ch, err := c.Chat(context.Background(), "t1")
	require.NoError(t, err)

	done := make(chan *message.Message, 1)
	go func() {
		msg, err := ch.AwaitMessage(context.Background(), func(m *message.Message) (bool, error) {
			return m.Text() == "the magic word", nil
		}, 2*time.Second)
		if err == nil {
			done <- msg
		}
		close(done)
	}()

	// Give the await goroutine time to subscribe.
	time.Sleep(50 * time.Millisecond)
	push(fake, igclient.OpAdd, inboundItem("m1", "t1", "7", "noise"))
	push(fake, igclient.OpAdd, inboundItem("m2", "t1", "7", "the magic word"))

	msg, ok := <-done
	require.True(t, ok, "await should resolve before timeout")
	assert.Equal(t, domain.EntityID("m2"), msg.ID())
}

func TestLogoutClearsPersistedSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := session.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	fake := igclient.NewFake()
	bus := eventbus.New()
	defer bus.Close()
	cfg := config.Default()

	c := New(fake, bus, store, &cfg)
	require.NoError(t, c.Login(context.Background(), "botacct", "hunter2"))
	require.NoError(t, c.Logout(context.Background()))

	entry, err := store.Load("botacct")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Nil(t, c.Self())
}
