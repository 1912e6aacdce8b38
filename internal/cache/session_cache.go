package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certexam/internal/model"
)

// SessionCache holds the server-side truth for a live attempt: the
// countdown deadline the timer resyncs against, a mirror of the latest
// answer snapshot, and the autosave health flag. The local ticker in
// the session is a replica; Redis is authoritative.
type SessionCache interface {
	StartClock(ctx context.Context, attemptID string, limit time.Duration) error
	RemainingSeconds(ctx context.Context, attemptID string) (int, error)
	Pause(ctx context.Context, attemptID string) error
	Resume(ctx context.Context, attemptID string) error
	SetAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error
	SetSaveStatus(ctx context.Context, attemptID string, status model.SaveStatus) error
	Clear(ctx context.Context, attemptID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    24 * time.Hour, // live attempt state expires after 24h
	}
}

func (c *sessionCache) deadlineKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:deadline", attemptID)
}

func (c *sessionCache) pausedKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:pausedAt", attemptID)
}

func (c *sessionCache) answersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

func (c *sessionCache) saveStatusKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:saveStatus", attemptID)
}

// StartClock anchors the deadline at now + limit. Used at attempt
// start, and again with the restored remaining time on resume.
func (c *sessionCache) StartClock(ctx context.Context, attemptID string, limit time.Duration) error {
	deadline := time.Now().Add(limit).Unix()
	if err := c.client.Set(ctx, c.deadlineKey(attemptID), deadline, c.ttl).Err(); err != nil {
		return err
	}
	return c.client.Del(ctx, c.pausedKey(attemptID)).Err()
}

// RemainingSeconds computes the authoritative remaining time from the
// stored deadline. While paused, the clock is frozen at the pause
// instant. Never negative.
func (c *sessionCache) RemainingSeconds(ctx context.Context, attemptID string) (int, error) {
	deadline, err := c.client.Get(ctx, c.deadlineKey(attemptID)).Int64()
	if err == redis.Nil {
		return 0, fmt.Errorf("no clock for attempt %s", attemptID)
	}
	if err != nil {
		return 0, err
	}

	ref := time.Now().Unix()
	pausedAt, err := c.client.Get(ctx, c.pausedKey(attemptID)).Int64()
	if err == nil {
		ref = pausedAt
	} else if err != redis.Nil {
		return 0, err
	}

	remaining := deadline - ref
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

func (c *sessionCache) Pause(ctx context.Context, attemptID string) error {
	return c.client.SetNX(ctx, c.pausedKey(attemptID), time.Now().Unix(), c.ttl).Err()
}

// Resume pushes the deadline forward by the paused duration so the
// pause does not consume exam time.
func (c *sessionCache) Resume(ctx context.Context, attemptID string) error {
	pausedAt, err := c.client.Get(ctx, c.pausedKey(attemptID)).Int64()
	if err == redis.Nil {
		return nil // not paused
	}
	if err != nil {
		return err
	}

	pausedFor := time.Now().Unix() - pausedAt
	if pausedFor > 0 {
		if err := c.client.IncrBy(ctx, c.deadlineKey(attemptID), pausedFor).Err(); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, c.pausedKey(attemptID)).Err()
}

func (c *sessionCache) SetAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.answersKey(attemptID), data, c.ttl).Err()
}

func (c *sessionCache) SetSaveStatus(ctx context.Context, attemptID string, status model.SaveStatus) error {
	return c.client.Set(ctx, c.saveStatusKey(attemptID), string(status), c.ttl).Err()
}

func (c *sessionCache) Clear(ctx context.Context, attemptID string) error {
	return c.client.Del(ctx,
		c.deadlineKey(attemptID),
		c.pausedKey(attemptID),
		c.answersKey(attemptID),
		c.saveStatusKey(attemptID),
	).Err()
}
