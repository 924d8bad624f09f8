// Package presence tracks which connection ids are members of each
// room. It is bookkeeping only; broadcast routing never reads from it.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 룸별 참가자 집합 (keyed set)
type Store interface {
	Add(ctx context.Context, roomID, connID string) error
	Remove(ctx context.Context, roomID, connID string) error
	Members(ctx context.Context, roomID string) ([]string, error)
}

// RedisStore Redis set 기반 Store 구현
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 생성자
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	return &RedisStore{client: rdb}, nil
}

// Key 생성 유틸
func roomKey(roomID string) string {
	return "room:" + roomID + ":participants"
}

// Add 참가자 등록 (set add, 중복은 no-op)
func (s *RedisStore) Add(ctx context.Context, roomID, connID string) error {
	return s.client.SAdd(ctx, roomKey(roomID), connID).Err()
}

// Remove 참가자 제거 (이미 없으면 no-op)
func (s *RedisStore) Remove(ctx context.Context, roomID, connID string) error {
	return s.client.SRem(ctx, roomKey(roomID), connID).Err()
}

// Members 룸의 현재 참가자 목록
func (s *RedisStore) Members(ctx context.Context, roomID string) ([]string, error) {
	return s.client.SMembers(ctx, roomKey(roomID)).Result()
}

// Close Redis 연결 종료
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Health Redis 연결 상태 확인
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
