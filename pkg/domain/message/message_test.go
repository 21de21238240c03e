package message

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/igclient"
)

func payload(itemID string) igclient.ItemPayload {
	return igclient.ItemPayload{
		ItemID:      itemID,
		ThreadID:    "t1",
		UserPK:      "7",
		ItemType:    "text",
		Text:        "hi",
		TimestampUS: 1700000000000000,
	}
}

func TestFromPayloadProjectsFields(t *testing.T) {
	p := payload("m1")
	p.Media = &igclient.MediaPayload{URL: "https://x/img.jpg", Width: 640, Height: 480}
	p.Reactions = []igclient.ReactionPayload{{Emoji: "❤️", SenderPK: "8"}}

	m := FromPayload(p, nil)

	assert.Equal(t, domain.EntityID("m1"), m.ID())
	assert.Equal(t, domain.EntityID("t1"), m.ChatID())
	assert.Equal(t, domain.EntityID("7"), m.AuthorID())
	assert.Equal(t, domain.KindText, m.Kind())
	assert.True(t, m.HasText())
	require.NotNil(t, m.Media())
	assert.Equal(t, 640, m.Media().Width)
	require.Len(t, m.Reactions(), 1)
	assert.Equal(t, domain.EntityID("8"), m.Reactions()[0].SenderID)
}

func TestUnknownItemTypeBecomesPlaceholder(t *testing.T) {
	p := payload("m1")
	p.ItemType = "some_future_type"
	m := FromPayload(p, nil)
	assert.Equal(t, domain.KindPlaceholder, m.Kind())
}

func TestPatchKeepsIdentity(t *testing.T) {
	m := FromPayload(payload("m1"), nil)

	updated := payload("m1")
	updated.Text = "hi (edited)"
	require.NoError(t, m.Patch(updated))
	assert.Equal(t, "hi (edited)", m.Text())
	assert.Equal(t, domain.EntityID("m1"), m.ID())
}

func TestPatchRejectsForeignIdentity(t *testing.T) {
	m := FromPayload(payload("m1"), nil)
	err := m.Patch(payload("m2"))
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, "hi", m.Text(), "failed patch must not mutate")
}

func TestPatchClearsStaleAttachments(t *testing.T) {
	p := payload("m1")
	p.Media = &igclient.MediaPayload{URL: "https://x/img.jpg"}
	m := FromPayload(p, nil)
	require.NotNil(t, m.Media())

	require.NoError(t, m.Patch(payload("m1")))
	assert.Nil(t, m.Media())
}

func TestConcurrentPatchAndReads(t *testing.T) {
	m := FromPayload(payload("m1"), nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p := payload("m1")
			p.Text = "rev"
			p.Media = &igclient.MediaPayload{URL: "https://x/img.jpg"}
			p.Reactions = []igclient.ReactionPayload{{Emoji: "❤️", SenderPK: "8"}}
			require.NoError(t, m.Patch(p))
			require.NoError(t, m.Patch(payload("m1")))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = m.Text()
			_ = m.Kind()
			_ = m.Timestamp()
			if md := m.Media(); md != nil {
				_ = md.URL
			}
			for _, r := range m.Reactions() {
				_ = r.Emoji
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, domain.EntityID("m1"), m.ID())
}

func TestReactionsSnapshotSurvivesPatch(t *testing.T) {
	p := payload("m1")
	p.Reactions = []igclient.ReactionPayload{{Emoji: "❤️", SenderPK: "8"}}
	m := FromPayload(p, nil)

	snapshot := m.Reactions()
	require.NoError(t, m.Patch(payload("m1")))

	require.Len(t, snapshot, 1)
	assert.Equal(t, "❤️", snapshot[0].Emoji)
	assert.Empty(t, m.Reactions())
}

func TestCommandsFailDetached(t *testing.T) {
	m := FromPayload(payload("m1"), nil)
	ctx := context.Background()

	_, err := m.Reply(ctx, "pong")
	assert.ErrorIs(t, err, ErrDetached)
	assert.ErrorIs(t, m.React(ctx, "❤️"), ErrDetached)
	assert.ErrorIs(t, m.Unsend(ctx), ErrDetached)
	assert.ErrorIs(t, m.MarkSeen(ctx), ErrDetached)
}
