package user

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/igclient"
)

func info(pk string) igclient.UserInfo {
	return igclient.UserInfo{
		PK:            pk,
		Username:      "alice",
		FullName:      "Alice A.",
		IsPrivate:     true,
		FollowerCount: 12,
	}
}

func TestFromInfoProjectsFields(t *testing.T) {
	u := FromInfo(info("7"), nil)

	assert.Equal(t, domain.EntityID("7"), u.ID())
	assert.Equal(t, "alice", u.Username())
	assert.Equal(t, "Alice A.", u.FullName())
	assert.True(t, u.Private())
	assert.Equal(t, 12, u.FollowerCount())
}

func TestPatchRejectsForeignPK(t *testing.T) {
	u := FromInfo(info("7"), nil)
	assert.ErrorIs(t, u.Patch(info("8")), ErrIdentityMismatch)
	assert.Equal(t, "alice", u.Username(), "failed patch must not mutate")
}

func TestConcurrentPatchAndReads(t *testing.T) {
	u := FromInfo(info("7"), nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			refreshed := info("7")
			refreshed.FollowerCount = i
			require.NoError(t, u.Patch(refreshed))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = u.Username()
			_ = u.Private()
			_ = u.FollowerCount()
		}
	}()
	wg.Wait()

	assert.Equal(t, "alice", u.Username())
}

func TestCommandsFailDetached(t *testing.T) {
	u := FromInfo(info("7"), nil)
	ctx := context.Background()

	assert.ErrorIs(t, u.Follow(ctx), ErrDetached)
	assert.ErrorIs(t, u.Block(ctx), ErrDetached)
	_, err := u.SendText(ctx, "hi")
	assert.ErrorIs(t, err, ErrDetached)
}
