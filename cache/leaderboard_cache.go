// Package cache keeps hot read paths off Postgres. The leaderboard is the
// only cached surface; everything match-scoped lives in memory inside the
// engine and needs no cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentclash/arena/models"
	"github.com/redis/go-redis/v9"
)

const leaderboardTTL = 30 * time.Second

// LeaderboardCache stores ranked participant snapshots per page size.
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]models.Participant, bool, error)
	Set(ctx context.Context, limit int, participants []models.Participant) error
	Invalidate(ctx context.Context) error
}

type leaderboardCache struct {
	client *redis.Client
}

func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{client: client}
}

func (c *leaderboardCache) key(limit int) string {
	return fmt.Sprintf("arena:leaderboard:%d", limit)
}

func (c *leaderboardCache) Get(ctx context.Context, limit int) ([]models.Participant, bool, error) {
	data, err := c.client.Get(ctx, c.key(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("leaderboard cache get: %w", err)
	}

	var participants []models.Participant
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, false, fmt.Errorf("leaderboard cache decode: %w", err)
	}
	return participants, true, nil
}

func (c *leaderboardCache) Set(ctx context.Context, limit int, participants []models.Participant) error {
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("leaderboard cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(limit), data, leaderboardTTL).Err(); err != nil {
		return fmt.Errorf("leaderboard cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached page. Called after match results land so
// fresh standings show up on the next read.
func (c *leaderboardCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "arena:leaderboard:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("leaderboard cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("leaderboard cache invalidate: %w", err)
	}
	return nil
}
