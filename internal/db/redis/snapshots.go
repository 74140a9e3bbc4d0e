package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iamwavecut/ngwarden/internal/db"
)

const chatIndexKey = "snapshot/chats"

// SnapshotStore keeps chat documents in redis, used when several replicas share state on restart.
type SnapshotStore struct {
	client *goredis.Client
}

var _ db.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(ctx context.Context, redisURL string) (*SnapshotStore, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &SnapshotStore{client: rdb}, nil
}

func snapshotKey(chatID int64) string {
	return "snapshot/" + strconv.FormatInt(chatID, 10)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, chatID int64, data []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(chatID), data, 0)
		pipe.SAdd(ctx, chatIndexKey, chatID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, chatID int64) ([]byte, error) {
	payload, err := s.client.Get(ctx, snapshotKey(chatID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for chat %d: %w", chatID, err)
	}
	return payload, nil
}

func (s *SnapshotStore) ListSnapshotChats(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, chatIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshot chats: %w", err)
	}
	return parseChatIDs(members)
}

func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, chatID int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, snapshotKey(chatID))
		pipe.SRem(ctx, chatIndexKey, chatID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

func parseChatIDs(members []string) ([]int64, error) {
	chatIDs := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chat id %q in snapshot index: %w", m, err)
		}
		chatIDs = append(chatIDs, id)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs, nil
}
