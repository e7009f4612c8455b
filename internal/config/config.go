package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"ilowa-market-sol/internal/cache"
	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/ledger"
	"ilowa-market-sol/internal/logic/session"
	"ilowa-market-sol/internal/logic/stream"
	"ilowa-market-sol/internal/mq"
	"ilowa-market-sol/internal/service"
	"ilowa-market-sol/internal/signer"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

type LogConfig struct {
	Format   string `json:"format,optional" yaml:"format"`     // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional" yaml:"log_dir"`   // 日志目录（可为相对路径或绝对路径）
	Level    string `json:"level,optional" yaml:"level"`       // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional" yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// LedgerConfig RPC 节点配置
type LedgerConfig struct {
	Endpoints        []string `json:"endpoints" yaml:"endpoints"`                            // 多个 RPC 节点，失败时自动切换
	Commitment       string   `json:"commitment,optional" yaml:"commitment"`                 // processed / confirmed / finalized
	RequestTimeoutMs int      `json:"request_timeout_ms,optional" yaml:"request_timeout_ms"` // 单次请求超时
}

func (c *LedgerConfig) ToLedgerOption() ledger.Option {
	return ledger.Option{
		Endpoints:      c.Endpoints,
		Commitment:     c.Commitment,
		RequestTimeout: time.Duration(c.RequestTimeoutMs) * time.Millisecond,
	}
}

type ProgramConfig struct {
	ProgramID string `json:"program_id,optional" yaml:"program_id"` // 为空时使用主网部署地址
}

func (c *ProgramConfig) ProgramPubkey() (types.Pubkey, error) {
	if c.ProgramID == "" {
		return consts.MarketProgram, nil
	}
	pk, err := types.TryPubkeyFromBase58(c.ProgramID)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid program_id %q: %w", c.ProgramID, err)
	}
	return pk, nil
}

// SessionConfig 签名会话策略，零值字段使用默认策略
type SessionConfig struct {
	BlockhashMaxAttempts  int     `json:"blockhash_max_attempts,optional" yaml:"blockhash_max_attempts"`
	BlockhashRetryDelayMs int     `json:"blockhash_retry_delay_ms,optional" yaml:"blockhash_retry_delay_ms"`
	BlockhashMaxDelayMs   int     `json:"blockhash_max_delay_ms,optional" yaml:"blockhash_max_delay_ms"`
	BlockhashBackoff      float64 `json:"blockhash_backoff,optional" yaml:"blockhash_backoff"` // <= 1 为固定间隔
	ConfirmIntervalMs     int     `json:"confirm_interval_ms,optional" yaml:"confirm_interval_ms"`
	ConfirmDeadlineSec    int     `json:"confirm_deadline_sec,optional" yaml:"confirm_deadline_sec"`
	ResyncDelaysMs        []int   `json:"resync_delays_ms,optional" yaml:"resync_delays_ms"`
}

func (c *SessionConfig) ToPolicy(commitment string) session.Policy {
	p := session.DefaultPolicy()
	if c.BlockhashMaxAttempts > 0 {
		p.Blockhash.MaxAttempts = c.BlockhashMaxAttempts
	}
	if c.BlockhashRetryDelayMs > 0 {
		p.Blockhash.InitialDelay = time.Duration(c.BlockhashRetryDelayMs) * time.Millisecond
	}
	if c.BlockhashMaxDelayMs > 0 {
		p.Blockhash.MaxDelay = time.Duration(c.BlockhashMaxDelayMs) * time.Millisecond
	}
	if c.BlockhashBackoff != 0 {
		p.Blockhash.BackoffFactor = c.BlockhashBackoff
	}
	if c.ConfirmIntervalMs > 0 {
		p.ConfirmInterval = time.Duration(c.ConfirmIntervalMs) * time.Millisecond
	}
	if c.ConfirmDeadlineSec > 0 {
		p.ConfirmDeadline = time.Duration(c.ConfirmDeadlineSec) * time.Second
	}
	if len(c.ResyncDelaysMs) > 0 {
		p.ResyncDelays = make([]time.Duration, len(c.ResyncDelaysMs))
		for i, ms := range c.ResyncDelaysMs {
			p.ResyncDelays[i] = time.Duration(ms) * time.Millisecond
		}
	}
	if commitment != "" {
		p.Commitment = commitment
	}
	return p
}

// SignerConfig 远程钱包桥接与应用身份
type SignerConfig struct {
	Endpoint string `json:"endpoint,optional" yaml:"endpoint"`
	AppName  string `json:"app_name,optional" yaml:"app_name"`
	AppURI   string `json:"app_uri,optional" yaml:"app_uri"`
	AppIcon  string `json:"app_icon,optional" yaml:"app_icon"`
	Cluster  string `json:"cluster,optional" yaml:"cluster"`
}

func (c *SignerConfig) ToIdentity() signer.AppIdentity {
	return signer.AppIdentity{Name: c.AppName, URI: c.AppURI, Icon: c.AppIcon, Cluster: c.Cluster}
}

// RedisConfig 压缩市场问题文本缓存；Addr 为空时使用进程内存储
type RedisConfig struct {
	Addr      string `json:"addr,optional" yaml:"addr"`
	Password  string `json:"password,optional" yaml:"password"`
	DB        int    `json:"db,optional" yaml:"db"`
	KeyPrefix string `json:"key_prefix,optional" yaml:"key_prefix"`
	TTLHours  int    `json:"ttl_hours,optional" yaml:"ttl_hours"`
}

func (c *RedisConfig) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

func (c *RedisConfig) ToLabelStoreOption() cache.LabelStoreOption {
	return cache.LabelStoreOption{
		KeyPrefix: c.KeyPrefix,
		TTL:       time.Duration(c.TTLHours) * time.Hour,
	}
}

// KafkaProducerConfig Kafka 生产者配置；Brokers 为空时不发布事件
type KafkaProducerConfig struct {
	Brokers       string `json:"brokers,optional" yaml:"brokers"`                 // 多个用英文逗号分隔
	BatchSize     int    `json:"batch_size,optional" yaml:"batch_size"`           // 批处理大小（单位字节）
	LingerMs      int    `json:"linger_ms,optional" yaml:"linger_ms"`             // 批处理最大延迟（毫秒）
	Topic         string `json:"topic,optional" yaml:"topic"`                     // 市场与提交事件 topic
	Partitions    int    `json:"partitions,optional" yaml:"partitions"`           // topic 分区数
	SendTimeoutMs int    `json:"send_timeout_ms,optional" yaml:"send_timeout_ms"` // 单条消息等待 ack 的超时
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		Brokers:    c.Brokers,
		BatchSize:  c.BatchSize,
		LingerMs:   c.LingerMs,
		Topic:      c.Topic,
		Partitions: c.Partitions,
	}
}

func (c *KafkaProducerConfig) ToPublisherOption() mq.PublisherOption {
	return mq.PublisherOption{
		Topic:       c.Topic,
		Partitions:  c.Partitions,
		SendTimeout: time.Duration(c.SendTimeoutMs) * time.Millisecond,
	}
}

// GrpcConfig Geyser 账户订阅；Endpoint 为空时只依赖周期性全量同步
type GrpcConfig struct {
	Endpoint string `json:"endpoint,optional" yaml:"endpoint"` // gRPC 服务端地址
	XToken   string `json:"x_token,optional" yaml:"x_token"`   // x-token 认证
	Insecure bool   `json:"insecure,optional" yaml:"insecure"` // 明文连接

	StreamPingIntervalSec    int `json:"stream_ping_interval_sec,optional" yaml:"stream_ping_interval_sec"`
	KeepalivePingIntervalSec int `json:"keepalive_ping_interval_sec,optional" yaml:"keepalive_ping_interval_sec"`
	KeepalivePingTimeoutSec  int `json:"keepalive_ping_timeout_sec,optional" yaml:"keepalive_ping_timeout_sec"`
	InitialWindowSize        int `json:"initial_window_size,optional" yaml:"initial_window_size"`
	InitialConnWindowSize    int `json:"initial_conn_window_size,optional" yaml:"initial_conn_window_size"`
	MaxCallSendMsgSize       int `json:"max_call_send_msg_size,optional" yaml:"max_call_send_msg_size"`
	MaxCallRecvMsgSize       int `json:"max_call_recv_msg_size,optional" yaml:"max_call_recv_msg_size"`
	ReconnectIntervalSec     int `json:"reconnect_interval_sec,optional" yaml:"reconnect_interval_sec"`
	ConnectTimeoutSec        int `json:"connect_timeout_sec,optional" yaml:"connect_timeout_sec"`
	SendTimeoutSec           int `json:"send_timeout_sec,optional" yaml:"send_timeout_sec"`
	IdleTimeoutSec           int `json:"idle_timeout_sec,optional" yaml:"idle_timeout_sec"`
}

func (c *GrpcConfig) ToStreamOption(programID types.Pubkey, commitment string) stream.StreamOption {
	return stream.StreamOption{
		Endpoint:                 c.Endpoint,
		XToken:                   c.XToken,
		Insecure:                 c.Insecure,
		Owners:                   []string{programID.String()},
		Commitment:               commitment,
		StreamPingIntervalSec:    c.StreamPingIntervalSec,
		KeepalivePingIntervalSec: c.KeepalivePingIntervalSec,
		KeepalivePingTimeoutSec:  c.KeepalivePingTimeoutSec,
		InitialWindowSize:        c.InitialWindowSize,
		InitialConnWindowSize:    c.InitialConnWindowSize,
		MaxCallSendMsgSize:       c.MaxCallSendMsgSize,
		MaxCallRecvMsgSize:       c.MaxCallRecvMsgSize,
		ReconnectIntervalSec:     c.ReconnectIntervalSec,
		ConnectTimeoutSec:        c.ConnectTimeoutSec,
		SendTimeoutSec:           c.SendTimeoutSec,
		IdleTimeoutSec:           c.IdleTimeoutSec,
	}
}

type SyncConfig struct {
	IntervalSec       int `json:"interval_sec,optional" yaml:"interval_sec"`               // 全量同步间隔
	RequestTimeoutSec int `json:"request_timeout_sec,optional" yaml:"request_timeout_sec"` // 单次全量同步超时
}

func (c *SyncConfig) ToSyncOption(programID types.Pubkey) service.SyncOption {
	return service.SyncOption{
		ProgramID:      programID,
		Interval:       time.Duration(c.IntervalSec) * time.Second,
		RequestTimeout: time.Duration(c.RequestTimeoutSec) * time.Second,
	}
}

// Config 主配置
type Config struct {
	LogConf           LogConfig           `json:"logger,optional" yaml:"logger"`
	Ledger            LedgerConfig        `json:"ledger" yaml:"ledger"`
	Program           ProgramConfig       `json:"program,optional" yaml:"program"`
	Session           SessionConfig       `json:"session,optional" yaml:"session"`
	Signer            SignerConfig        `json:"signer,optional" yaml:"signer"`
	Redis             RedisConfig         `json:"redis,optional" yaml:"redis"`
	KafkaProducerConf KafkaProducerConfig `json:"kafka_producer,optional" yaml:"kafka_producer"`
	Grpc              GrpcConfig          `json:"grpc,optional" yaml:"grpc"`
	Sync              SyncConfig          `json:"sync,optional" yaml:"sync"`
}

// Parse 解析 YAML 配置并校验
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func (c *Config) Validate() error {
	if len(c.Ledger.Endpoints) == 0 {
		return fmt.Errorf("config: ledger.endpoints is empty")
	}
	switch c.Ledger.Commitment {
	case "", ledger.CommitmentProcessed, ledger.CommitmentConfirmed, ledger.CommitmentFinalized:
	default:
		return fmt.Errorf("config: unknown commitment %q", c.Ledger.Commitment)
	}
	if _, err := c.Program.ProgramPubkey(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.KafkaProducerConf.Brokers != "" && c.KafkaProducerConf.Topic == "" {
		return fmt.Errorf("config: kafka_producer.topic is required when brokers are set")
	}
	return nil
}
