// Package user defines the User bounded context.
// A User is a projection of an Instagram account. Command methods delegate
// to the client facade. Mutable fields live behind the entity lock: profile
// fetches patch on one goroutine while the gateway reads on another.
package user

import (
	"context"
	"sync"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/igclient"
)

// Actions is implemented by the client facade.
type Actions interface {
	Follow(ctx context.Context, userPK domain.EntityID) error
	Unfollow(ctx context.Context, userPK domain.EntityID) error
	Block(ctx context.Context, userPK domain.EntityID) error
	Unblock(ctx context.Context, userPK domain.EntityID) error
	// DirectText opens (or reuses) the 1:1 thread with the user and sends text.
	DirectText(ctx context.Context, userPK domain.EntityID, text string) (*message.Message, error)
}

// User projects one account. Mutable fields change only via Patch.
type User struct {
	id domain.EntityID // user pk, immutable

	mu             sync.RWMutex
	username       string
	fullName       string
	private        bool
	followerCount  int
	followingCount int
	profilePicURL  string

	actions Actions
}

// FromInfo projects a wrapper user payload into a User.
func FromInfo(u igclient.UserInfo, actions Actions) *User {
	usr := &User{
		id:      domain.EntityID(u.PK),
		actions: actions,
	}
	usr.apply(u)
	return usr
}

// ID returns the immutable user pk.
func (u *User) ID() domain.EntityID { return u.id }

// Patch overwrites mutable fields from fresh server data.
func (u *User) Patch(info igclient.UserInfo) error {
	if domain.EntityID(info.PK) != u.id {
		return ErrIdentityMismatch
	}
	u.apply(info)
	return nil
}

func (u *User) apply(info igclient.UserInfo) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.username = info.Username
	u.fullName = info.FullName
	u.private = info.IsPrivate
	u.followerCount = info.FollowerCount
	u.followingCount = info.FollowingCount
	u.profilePicURL = info.ProfilePicURL
}

// Username returns the account handle.
func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

// FullName returns the display name.
func (u *User) FullName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.fullName
}

// Private reports whether the account is private.
func (u *User) Private() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.private
}

// FollowerCount returns the follower count as last fetched.
func (u *User) FollowerCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.followerCount
}

// FollowingCount returns the following count as last fetched.
func (u *User) FollowingCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.followingCount
}

// ProfilePicURL returns the avatar URL.
func (u *User) ProfilePicURL() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.profilePicURL
}

// Follow requests to follow the user.
func (u *User) Follow(ctx context.Context) error {
	if u.actions == nil {
		return ErrDetached
	}
	return u.actions.Follow(ctx, u.id)
}

// Unfollow stops following the user.
func (u *User) Unfollow(ctx context.Context) error {
	if u.actions == nil {
		return ErrDetached
	}
	return u.actions.Unfollow(ctx, u.id)
}

// Block blocks the user.
func (u *User) Block(ctx context.Context) error {
	if u.actions == nil {
		return ErrDetached
	}
	return u.actions.Block(ctx, u.id)
}

// Unblock unblocks the user.
func (u *User) Unblock(ctx context.Context) error {
	if u.actions == nil {
		return ErrDetached
	}
	return u.actions.Unblock(ctx, u.id)
}

// SendText opens (or reuses) the direct thread with this user and sends text.
func (u *User) SendText(ctx context.Context, text string) (*message.Message, error) {
	if u.actions == nil {
		return nil, ErrDetached
	}
	return u.actions.DirectText(ctx, u.id, text)
}

// UserError is a typed error for the user domain.
type UserError string

func (e UserError) Error() string { return string(e) }

const (
	ErrIdentityMismatch UserError = "user: patch payload carries a different pk"
	ErrDetached         UserError = "user: no client actions attached"
	ErrNotFound         UserError = "user: not found"
)
