package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

const (
	defaultLabelPrefix = "ilowa:market:label"
	defaultLabelTTL    = 30 * 24 * time.Hour
)

var ErrLabelMismatch = errors.New("cache: question does not match on-chain hash")

// LabelStore 压缩市场问题文本的旁路存储（链上只有折叠哈希）
type LabelStore interface {
	GetLabels(ctx context.Context, addrs []types.Pubkey) (map[types.Pubkey]string, error)
	SetLabel(ctx context.Context, addr types.Pubkey, question string) error
}

type LabelStoreOption struct {
	KeyPrefix string
	TTL       time.Duration
}

// RedisLabelStore 以市场地址为 key 的 Redis 存储
type RedisLabelStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLabelStore(rdb redis.Cmdable, opt LabelStoreOption) *RedisLabelStore {
	prefix := opt.KeyPrefix
	if prefix == "" {
		prefix = defaultLabelPrefix
	}
	ttl := opt.TTL
	if ttl <= 0 {
		ttl = defaultLabelTTL
	}
	return &RedisLabelStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisLabelStore) key(addr types.Pubkey) string {
	return fmt.Sprintf("%s:%s", s.prefix, addr)
}

func (s *RedisLabelStore) GetLabels(ctx context.Context, addrs []types.Pubkey) (map[types.Pubkey]string, error) {
	labels := make(map[types.Pubkey]string, len(addrs))
	if len(addrs) == 0 {
		return labels, nil
	}

	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = s.key(addr)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget error: %w", err)
	}
	for i, v := range vals {
		// 不存在的 key 返回 nil
		if str, ok := v.(string); ok && i < len(addrs) {
			labels[addrs[i]] = str
		}
	}
	return labels, nil
}

func (s *RedisLabelStore) SetLabel(ctx context.Context, addr types.Pubkey, question string) error {
	return s.rdb.Set(ctx, s.key(addr), question, s.ttl).Err()
}

// MemoryLabelStore 进程内实现，未配置 Redis 时使用
type MemoryLabelStore struct {
	mu     sync.RWMutex
	labels map[types.Pubkey]string
}

func NewMemoryLabelStore() *MemoryLabelStore {
	return &MemoryLabelStore{labels: make(map[types.Pubkey]string)}
}

func (s *MemoryLabelStore) GetLabels(_ context.Context, addrs []types.Pubkey) (map[types.Pubkey]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make(map[types.Pubkey]string, len(addrs))
	for _, addr := range addrs {
		if v, ok := s.labels[addr]; ok {
			labels[addr] = v
		}
	}
	return labels, nil
}

func (s *MemoryLabelStore) SetLabel(_ context.Context, addr types.Pubkey, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[addr] = question
	return nil
}

// LabelResolver 为压缩市场取回可展示的问题文本。
// 存储中的文本必须与链上折叠哈希一致，否则使用占位标题。
type LabelResolver struct {
	store LabelStore
}

func NewLabelResolver(store LabelStore) *LabelResolver {
	return &LabelResolver{store: store}
}

// Remember 创建市场后保存问题原文，哈希不一致时拒绝
func (r *LabelResolver) Remember(ctx context.Context, rec *decoder.CompressedMarketRecord, question string) error {
	if !rec.MatchesQuestion(question) {
		return fmt.Errorf("%w: market=%s", ErrLabelMismatch, rec.Address)
	}
	return r.store.SetLabel(ctx, rec.Address, question)
}

// Resolve 返回 地址 -> 标题；存储不可用时全部降级为占位标题
func (r *LabelResolver) Resolve(ctx context.Context, recs []*decoder.CompressedMarketRecord) map[types.Pubkey]string {
	out := make(map[types.Pubkey]string, len(recs))
	if len(recs) == 0 {
		return out
	}

	addrs := make([]types.Pubkey, len(recs))
	for i, rec := range recs {
		addrs[i] = rec.Address
	}

	stored, err := r.store.GetLabels(ctx, addrs)
	if err != nil {
		logger.Warnf("[LabelResolver] 读取问题文本失败，使用占位标题: count=%d, err=%v", len(recs), err)
		stored = nil
	}

	for _, rec := range recs {
		if q, ok := stored[rec.Address]; ok {
			if rec.MatchesQuestion(q) {
				out[rec.Address] = q
				continue
			}
			logger.Warnf("[LabelResolver] 问题文本与链上哈希不一致: market=%s", rec.Address)
		}
		out[rec.Address] = rec.PlaceholderLabel()
	}
	return out
}
