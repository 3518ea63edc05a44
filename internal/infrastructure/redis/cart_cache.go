package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = domcart.ErrNotCached

type cachedCart struct {
	UserID string       `json:"user_id"`
	Items  []cachedItem `json:"items"`
}

type cachedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CartCache keeps read copies of carts. The database stays the source of truth.
type CartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCartCache(client *redis.Client, baseTTL time.Duration) *CartCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &CartCache{client: client, baseTTL: baseTTL}
}

func (c *CartCache) Get(ctx context.Context, userID string) (*domcart.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cached cachedCart
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	out := &domcart.Cart{UserID: cached.UserID, Items: make([]domcart.Item, 0, len(cached.Items))}
	for _, it := range cached.Items {
		out.Items = append(out.Items, domcart.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out, nil
}

func (c *CartCache) Set(ctx context.Context, cart *domcart.Cart) error {
	cached := cachedCart{UserID: cart.UserID, Items: make([]cachedItem, 0, len(cart.Items))}
	for _, it := range cart.Items {
		cached.Items = append(cached.Items, cachedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expirations of carts cached together
	ttl := c.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	if err := c.client.Set(ctx, cacheKey(cart.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
