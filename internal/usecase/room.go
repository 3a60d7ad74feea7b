package usecase

import (
	"context"
	"sync/atomic"

	"github.com/otpless/loginpage/pkg/logger"
)

// RoomRepository is the repository surface the room use cases need.
type RoomRepository interface {
	GetRoomID(ctx context.Context, headers map[string]string) (string, bool)
	GetRoomToken(ctx context.Context, appID, secret string) (string, bool)
}

type attemptCounter struct {
	last atomic.Int64
}

// Attempts reports how many attempts the most recent Invoke made.
func (c *attemptCounter) Attempts() int {
	return int(c.last.Load())
}

// RoomID acquires a room id for an app id.
type RoomID struct {
	attemptCounter
	repo   RoomRepository
	policy Policy
}

// NewRoomID creates the app-id room use case.
func NewRoomID(repo RoomRepository, policy Policy) *RoomID {
	return &RoomID{repo: repo, policy: policy}
}

// Invoke returns ok=false when no room id could be acquired.
func (u *RoomID) Invoke(ctx context.Context, appID string) (string, bool) {
	id, ok, attempts := Retry(ctx, u.policy, func(ctx context.Context) (string, bool) {
		return u.repo.GetRoomID(ctx, map[string]string{"appId": appID})
	})
	u.last.Store(int64(attempts))
	if !ok {
		logger.Warnf("room id unavailable after %d attempts", attempts)
	}
	return id, ok
}

// RoomIDByToken acquires a room id using a previously issued room token.
type RoomIDByToken struct {
	attemptCounter
	repo   RoomRepository
	policy Policy
}

// NewRoomIDByToken creates the token room use case.
func NewRoomIDByToken(repo RoomRepository, policy Policy) *RoomIDByToken {
	return &RoomIDByToken{repo: repo, policy: policy}
}

// Invoke returns ok=false when no room id could be acquired.
func (u *RoomIDByToken) Invoke(ctx context.Context, token string) (string, bool) {
	id, ok, attempts := Retry(ctx, u.policy, func(ctx context.Context) (string, bool) {
		return u.repo.GetRoomID(ctx, map[string]string{"token": token})
	})
	u.last.Store(int64(attempts))
	return id, ok
}

// RoomToken exchanges an app secret for a room token.
type RoomToken struct {
	attemptCounter
	repo   RoomRepository
	policy Policy
}

// NewRoomToken creates the room token use case.
func NewRoomToken(repo RoomRepository, policy Policy) *RoomToken {
	return &RoomToken{repo: repo, policy: policy}
}

// Invoke returns ok=false when no token could be acquired.
func (u *RoomToken) Invoke(ctx context.Context, appID, secret string) (string, bool) {
	token, ok, attempts := Retry(ctx, u.policy, func(ctx context.Context) (string, bool) {
		return u.repo.GetRoomToken(ctx, appID, secret)
	})
	u.last.Store(int64(attempts))
	return token, ok
}
