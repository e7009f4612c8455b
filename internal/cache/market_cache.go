package cache

import (
	"bytes"
	"reflect"
	"sort"
	"sync"
	"time"

	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/types"
)

type marketEntry struct {
	record decoder.Record
	slot   uint64
}

// MarketCache 读侧市场快照缓存。
// 全量同步与 Geyser 增量推送都会写入，slot 较旧的写入被忽略。
type MarketCache struct {
	mu       sync.RWMutex
	entries  map[types.Pubkey]marketEntry
	lastSync time.Time
}

func NewMarketCache() *MarketCache {
	return &MarketCache{
		entries: make(map[types.Pubkey]marketEntry),
	}
}

// ReplaceKind 用某一布局的全量快照替换缓存：
// - 新增或内容变化的记录放入 changed
// - 快照中缺失且不比快照新的记录被移除，放入 removed
// 只替换 kind 对应的布局，另一布局查询失败时不受影响。
func (c *MarketCache) ReplaceKind(kind decoder.Kind, records []decoder.Record, slot uint64) (changed []decoder.Record, removed []types.Pubkey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[types.Pubkey]struct{}, len(records))
	for _, rec := range records {
		if rec.Kind != kind {
			continue
		}
		addr := rec.Address()
		seen[addr] = struct{}{}
		if c.upsertUnsafe(rec, slot) {
			changed = append(changed, rec)
		}
	}

	for addr, e := range c.entries {
		if e.record.Kind != kind || e.slot > slot {
			continue
		}
		if _, ok := seen[addr]; !ok {
			delete(c.entries, addr)
			removed = append(removed, addr)
		}
	}
	sortPubkeys(removed)

	c.lastSync = time.Now()
	return changed, removed
}

// Upsert 增量写入，返回记录是否发生变化
func (c *MarketCache) Upsert(rec decoder.Record, slot uint64) bool {
	if rec.Kind == decoder.KindUnknown {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertUnsafe(rec, slot)
}

func (c *MarketCache) upsertUnsafe(rec decoder.Record, slot uint64) bool {
	addr := rec.Address()
	old, ok := c.entries[addr]
	if ok && old.slot > slot {
		return false
	}
	c.entries[addr] = marketEntry{record: rec, slot: slot}
	return !ok || !sameRecord(old.record, rec)
}

// Remove 账户被关闭时移除（仅当不比缓存中的记录旧）
func (c *MarketCache) Remove(addr types.Pubkey, slot uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.entries[addr]
	if !ok || old.slot > slot {
		return false
	}
	delete(c.entries, addr)
	return true
}

func (c *MarketCache) Get(addr types.Pubkey) (decoder.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[addr]
	return e.record, ok
}

func (c *MarketCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MarketCache) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Markets 明文市场列表，按创建时间倒序
func (c *MarketCache) Markets() []*decoder.MarketRecord {
	c.mu.RLock()
	list := make([]*decoder.MarketRecord, 0, len(c.entries))
	for _, e := range c.entries {
		if e.record.Kind == decoder.KindMarket {
			list = append(list, e.record.Market)
		}
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].Address.Compare(list[j].Address) < 0
	})
	return list
}

// Compressed 压缩市场列表，按创建时间倒序
func (c *MarketCache) Compressed() []*decoder.CompressedMarketRecord {
	c.mu.RLock()
	list := make([]*decoder.CompressedMarketRecord, 0, len(c.entries))
	for _, e := range c.entries {
		if e.record.Kind == decoder.KindCompressedMarket {
			list = append(list, e.record.Compressed)
		}
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].Address.Compare(list[j].Address) < 0
	})
	return list
}

func sameRecord(a, b decoder.Record) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case decoder.KindMarket:
		return reflect.DeepEqual(a.Market, b.Market)
	case decoder.KindCompressedMarket:
		return reflect.DeepEqual(a.Compressed, b.Compressed)
	default:
		return true
	}
}

func sortPubkeys(keys []types.Pubkey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}
