package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"ilowa-market-sol/internal/cache"
	"ilowa-market-sol/internal/ledger"
	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// MarketFetcher 全量拉取两类市场账户
type MarketFetcher interface {
	FetchMarkets(ctx context.Context, programID types.Pubkey) *ledger.MarketAccounts
}

// MarketPublisher 市场变化的下游通知（Kafka）
type MarketPublisher interface {
	PublishMarkets(ctx context.Context, changed []decoder.Record, removed []types.Pubkey, labels map[types.Pubkey]string) error
}

type SyncOption struct {
	ProgramID      types.Pubkey
	Interval       time.Duration
	RequestTimeout time.Duration
}

// MarketSyncService 周期性全量同步市场账户到缓存。
// 交易确认后通过 ScheduleResync 在若干延迟后补充同步，容忍 RPC 节点的读延迟。
type MarketSyncService struct {
	fetcher   MarketFetcher
	cache     *cache.MarketCache
	labels    *cache.LabelResolver
	publisher MarketPublisher

	programID types.Pubkey
	interval  time.Duration
	timeout   time.Duration

	syncMu   sync.Mutex // 同一时刻只运行一次同步
	ctx      context.Context
	cancel   func(err error)
	stopOnce sync.Once
	stopChan chan struct{}
}

func NewMarketSyncService(opt SyncOption, fetcher MarketFetcher, marketCache *cache.MarketCache, labels *cache.LabelResolver, publisher MarketPublisher) *MarketSyncService {
	interval := opt.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := opt.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if labels == nil {
		labels = cache.NewLabelResolver(cache.NewMemoryLabelStore())
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &MarketSyncService{
		fetcher:   fetcher,
		cache:     marketCache,
		labels:    labels,
		publisher: publisher,
		programID: opt.ProgramID,
		interval:  interval,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}
}

func (s *MarketSyncService) Start() {
	if err := s.Sync(); err != nil {
		logger.Warnf("[MarketSync] 初始同步失败: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Sync(); err != nil {
				logger.Warnf("[MarketSync] 周期性同步失败: %v", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

func (s *MarketSyncService) Stop() {
	s.stopOnce.Do(func() {
		s.cancel(errors.New("MarketSyncService stop"))
		close(s.stopChan)
	})
}

// ScheduleResync 实现 session.Resyncer：在每个延迟后各同步一次
func (s *MarketSyncService) ScheduleResync(delays []time.Duration) {
	for _, d := range delays {
		time.AfterFunc(d, func() {
			if s.ctx.Err() != nil {
				return
			}
			if err := s.Sync(); err != nil {
				logger.Warnf("[MarketSync] 提交后重同步失败: delay=%v, err=%v", d, err)
			}
		})
	}
}

// Sync 执行一次全量同步。某一布局查询失败时保留其旧缓存。
func (s *MarketSyncService) Sync() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[MarketSync] sync panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("sync panic: %v", r)
		}
	}()

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	accounts := s.fetcher.FetchMarkets(ctx, s.programID)
	if accounts.Failed() {
		return fmt.Errorf("fetch markets: %w", errors.Join(accounts.MarketErr, accounts.CompressedErr))
	}

	var (
		changed []decoder.Record
		removed []types.Pubkey
	)
	// 快照 slot 与增量推送的 slot 比较：比推送旧的快照不会覆盖缓存
	apply := func(kind decoder.Kind, accs []types.AccountData, slot uint64) {
		records := decoder.DecodeBatch(accs)
		c, r := s.cache.ReplaceKind(kind, records, max(slot, maxSlot(accs)))
		changed = append(changed, c...)
		removed = append(removed, r...)
	}
	if accounts.MarketErr == nil {
		apply(decoder.KindMarket, accounts.Markets, accounts.MarketSlot)
	}
	if accounts.CompressedErr == nil {
		apply(decoder.KindCompressedMarket, accounts.Compressed, accounts.CompressedSlot)
	}

	logger.Infof("[MarketSync] 同步完成: markets=%d, compressed=%d, changed=%d, removed=%d, elapsed=%v",
		len(accounts.Markets), len(accounts.Compressed), len(changed), len(removed), time.Since(start))

	s.publish(ctx, changed, removed)

	if accounts.MarketErr != nil || accounts.CompressedErr != nil {
		return fmt.Errorf("partial sync: %w", errors.Join(accounts.MarketErr, accounts.CompressedErr))
	}
	return nil
}

// NotifyChanged 实现 stream.ChangeNotifier，转发增量推送产生的变化
func (s *MarketSyncService) NotifyChanged(changed []decoder.Record, removed []types.Pubkey) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	s.publish(ctx, changed, removed)
}

func (s *MarketSyncService) publish(ctx context.Context, changed []decoder.Record, removed []types.Pubkey) {
	if s.publisher == nil || (len(changed) == 0 && len(removed) == 0) {
		return
	}

	var compressed []*decoder.CompressedMarketRecord
	for _, rec := range changed {
		if rec.Kind == decoder.KindCompressedMarket {
			compressed = append(compressed, rec.Compressed)
		}
	}
	labels := s.labels.Resolve(ctx, compressed)

	if err := s.publisher.PublishMarkets(ctx, changed, removed, labels); err != nil {
		logger.Errorf("[MarketSync] 发布市场变化失败: changed=%d, removed=%d, err=%v", len(changed), len(removed), err)
	}
}

func maxSlot(accs []types.AccountData) uint64 {
	var slot uint64
	for _, a := range accs {
		slot = max(slot, a.Slot)
	}
	return slot
}
