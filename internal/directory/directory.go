// Package directory 房間碼的跨實例保留
//
// 系統設計問題：
//   房間碼只有 4 個字元（32^4 ≈ 一百萬種），多台伺服器各自產生時，
//   如何避免兩台機器發出同一個房間碼，讓玩家加入錯的伺服器？
//
// 設計方案：
//   ✅ Redis SET NX EX：只有第一個保留者成功，其他實例重新產生
//   ✅ TTL + 定期續約：實例當機時保留會自動過期，不會永久佔用
//   ✅ 只有擁有者能續約與釋放（Lua 腳本比對值後再操作）
//   ✅ 單機部署使用 Nop：永遠成功，不需要 Redis
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Directory 房間碼保留
type Directory interface {
	// Reserve 嘗試保留房間碼；已被其他實例保留時回傳 false
	Reserve(ctx context.Context, code string) (bool, error)
	// Refresh 延長保留期限
	Refresh(ctx context.Context, code string) error
	// Release 釋放保留
	Release(ctx context.Context, code string) error
}

// Nop 單機模式：不做任何跨實例協調
type Nop struct{}

func (Nop) Reserve(context.Context, string) (bool, error) { return true, nil }
func (Nop) Refresh(context.Context, string) error         { return nil }
func (Nop) Release(context.Context, string) error         { return nil }

// 只在值相符時才操作，避免續約或刪除其他實例的保留
var (
	refreshScript = redis.NewScript(`
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('PEXPIRE', KEYS[1], ARGV[2])
		end
		return 0
	`)

	releaseScript = redis.NewScript(`
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		end
		return 0
	`)
)

// Redis 以 Redis 實現的房間碼保留
type Redis struct {
	client *redis.Client
	prefix string
	owner  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis 創建 Redis 目錄
//
// owner 是這個伺服器實例的唯一識別（通常是啟動時產生的 UUID）。
func NewRedis(client *redis.Client, prefix, owner string, ttl time.Duration, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "neonpong:room:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{
		client: client,
		prefix: prefix,
		owner:  owner,
		ttl:    ttl,
		logger: logger,
	}
}

// Reserve 保留房間碼
func (d *Redis) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(code), d.owner, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", code, err)
	}
	return ok, nil
}

// Refresh 續約；保留已過期或被其他實例取走時記錄警告
func (d *Redis) Refresh(ctx context.Context, code string) error {
	n, err := refreshScript.Run(ctx, d.client, []string{d.key(code)}, d.owner, d.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", code, err)
	}
	if n == 0 {
		d.logger.Warn("房間碼保留已失效", "room_code", code)
	}
	return nil
}

// Release 釋放保留
func (d *Redis) Release(ctx context.Context, code string) error {
	if err := releaseScript.Run(ctx, d.client, []string{d.key(code)}, d.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", code, err)
	}
	return nil
}

// Owner 保留者 ID
func (d *Redis) Owner() string {
	return d.owner
}

func (d *Redis) key(code string) string {
	return d.prefix + code
}
