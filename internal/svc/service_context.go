package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"ilowa-market-sol/internal/cache"
	"ilowa-market-sol/internal/config"
	"ilowa-market-sol/internal/ledger"
	"ilowa-market-sol/internal/logic/instruction"
	"ilowa-market-sol/internal/logic/session"
	"ilowa-market-sol/internal/mq"
	"ilowa-market-sol/internal/service"
	"ilowa-market-sol/internal/signer"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// ServiceContext 进程内共享的资源
type ServiceContext struct {
	Config    config.Config
	ProgramID types.Pubkey

	Ledger      *ledger.Client
	MarketCache *cache.MarketCache
	Labels      *cache.LabelResolver
	Builder     *instruction.Builder
	Sync        *service.MarketSyncService

	Redis     *redis.Client         // 未配置时为 nil
	Producer  *kafka.Producer       // 未配置时为 nil
	Publisher *mq.EventPublisher    // 未配置时为 nil
	Wallet    signer.Wallet         // 未配置签名器时为 nil
	Session   *session.Orchestrator // 未配置签名器时为 nil
}

func NewServiceContext(c config.Config) (*ServiceContext, error) {
	programID, err := c.Program.ProgramPubkey()
	if err != nil {
		return nil, err
	}

	// 1. 账本客户端
	ledgerClient, err := ledger.NewClient(c.Ledger.ToLedgerOption())
	if err != nil {
		return nil, err
	}

	sc := &ServiceContext{
		Config:      c,
		ProgramID:   programID,
		Ledger:      ledgerClient,
		MarketCache: cache.NewMarketCache(),
		Builder:     instruction.NewBuilder(programID),
	}

	// 2. 问题文本缓存：优先 Redis
	var store cache.LabelStore = cache.NewMemoryLabelStore()
	if c.Redis.Addr != "" {
		sc.Redis = redis.NewClient(c.Redis.ToRedisOptions())
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := sc.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warnf("[svc] Redis 不可用，问题文本将显示占位标题: addr=%s, err=%v", c.Redis.Addr, err)
		}
		store = cache.NewRedisLabelStore(sc.Redis, c.Redis.ToLabelStoreOption())
	}
	sc.Labels = cache.NewLabelResolver(store)

	// 3. Kafka 生产者
	var publisher service.MarketPublisher
	if c.KafkaProducerConf.Brokers != "" {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
		if err != nil {
			sc.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		sc.Producer = producer
		sc.Publisher = mq.NewEventPublisher(producer, c.KafkaProducerConf.ToPublisherOption())
		publisher = sc.Publisher
	}

	// 4. 市场同步
	sc.Sync = service.NewMarketSyncService(c.Sync.ToSyncOption(programID), ledgerClient, sc.MarketCache, sc.Labels, publisher)

	// 5. 签名会话
	if c.Signer.Endpoint != "" {
		sc.Wallet = signer.NewHTTPWallet(c.Signer.Endpoint)
		opts := []session.Option{session.WithResyncer(sc.Sync)}
		if sc.Publisher != nil {
			opts = append(opts, session.WithNotifier(sc.Publisher))
		}
		sc.Session = session.NewOrchestrator(ledgerClient, sc.Wallet, c.Signer.ToIdentity(),
			c.Session.ToPolicy(ledgerClient.Commitment()), opts...)
	}

	logger.Infof("[svc] 服务上下文初始化完成: program=%s, rpc=%d, redis=%t, kafka=%t, signer=%t",
		programID, len(c.Ledger.Endpoints), sc.Redis != nil, sc.Producer != nil, sc.Wallet != nil)
	return sc, nil
}

// Close 关闭服务上下文中的资源
func (sc *ServiceContext) Close() {
	if sc.Sync != nil {
		sc.Sync.Stop()
	}
	if sc.Producer != nil {
		sc.Producer.Flush(3000)
		sc.Producer.Close()
	}
	if sc.Redis != nil {
		_ = sc.Redis.Close()
	}
}
