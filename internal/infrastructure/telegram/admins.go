package telegram

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iamwavecut/ngwarden/internal/policy/permissions"
)

const adminCacheSize = 4096

type memberGetter interface {
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

type memberKey struct {
	chatID int64
	userID int64
}

// AdminCache answers whether a member may moderate, remembering answers for ttl.
type AdminCache struct {
	client memberGetter
	cache  *expirable.LRU[memberKey, bool]
}

func NewAdminCache(client memberGetter, ttl time.Duration) *AdminCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AdminCache{
		client: client,
		cache:  expirable.NewLRU[memberKey, bool](adminCacheSize, nil, ttl),
	}
}

func (c *AdminCache) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	key := memberKey{chatID: chatID, userID: userID}
	if isAdmin, ok := c.cache.Get(key); ok {
		return isAdmin, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := c.client.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d in %d: %w", userID, chatID, err)
	}
	isAdmin := permissions.CanModerate(&member)
	c.cache.Add(key, isAdmin)
	return isAdmin, nil
}

// Forget drops a cached answer, used when membership changes.
func (c *AdminCache) Forget(chatID, userID int64) {
	c.cache.Remove(memberKey{chatID: chatID, userID: userID})
}
