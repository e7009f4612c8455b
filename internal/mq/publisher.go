package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/logic/session"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/internal/utils"
	"ilowa-market-sol/pkg/logger"
)

// 事件类型前缀
const (
	EventTypeSubmission     uint32 = 1
	EventTypeMarketSnapshot uint32 = 2
	EventTypeMarketRemoved  uint32 = 3
)

const defaultSendTimeout = 3 * time.Second

type PublisherOption struct {
	Topic       string
	Partitions  int
	SendTimeout time.Duration
}

// EventPublisher 将提交结果与市场快照变化写入 Kafka
type EventPublisher struct {
	producer   Producer
	topic      string
	partitions uint32
	timeout    time.Duration
}

func NewEventPublisher(producer Producer, opt PublisherOption) *EventPublisher {
	timeout := opt.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	partitions := opt.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	return &EventPublisher{
		producer:   producer,
		topic:      opt.Topic,
		partitions: uint32(partitions),
		timeout:    timeout,
	}
}

// NotifySubmission 实现 session.Notifier
func (p *EventPublisher) NotifySubmission(ctx context.Context, ev session.SubmissionEvent) error {
	value, err := utils.EncodeFields(EventTypeSubmission, submissionFields(ev))
	if err != nil {
		return err
	}

	var key types.Pubkey
	if ev.Signer != "" {
		key, _ = types.TryPubkeyFromBase58(ev.Signer)
	}
	return p.send(ctx, []*KafkaJob{p.job(key, value)})
}

// PublishMarkets 发送变化的市场快照与被移除的地址
func (p *EventPublisher) PublishMarkets(ctx context.Context, changed []decoder.Record, removed []types.Pubkey, labels map[types.Pubkey]string) error {
	jobs := make([]*KafkaJob, 0, len(changed)+len(removed))
	for _, rec := range changed {
		fields, ok := marketFields(rec, labels)
		if !ok {
			continue
		}
		value, err := utils.EncodeFields(EventTypeMarketSnapshot, fields)
		if err != nil {
			return err
		}
		jobs = append(jobs, p.job(rec.Address(), value))
	}
	for _, addr := range removed {
		value, err := utils.EncodeFields(EventTypeMarketRemoved, map[string]any{"address": addr.String()})
		if err != nil {
			return err
		}
		jobs = append(jobs, p.job(addr, value))
	}
	if len(jobs) == 0 {
		return nil
	}
	return p.send(ctx, jobs)
}

func (p *EventPublisher) job(key types.Pubkey, value []byte) *KafkaJob {
	job := &KafkaJob{
		Topic:     p.topic,
		Partition: int32(utils.PartitionHashBytes(key[:], p.partitions)),
		Value:     value,
	}
	if !key.IsZero() {
		job.Key = []byte(key.String())
	}
	return job
}

func (p *EventPublisher) send(ctx context.Context, jobs []*KafkaJob) error {
	ok, failed := SendKafkaJobs(ctx, p.producer, jobs, p.timeout)
	if len(failed) > 0 {
		logger.Errorf("[mq] Kafka 发送失败: topic=%s, ok=%d, failed=%d, first_err=%v",
			p.topic, len(ok), len(failed), failed[0].Err)
		return fmt.Errorf("kafka: %d of %d messages failed: %w", len(failed), len(jobs), failed[0].Err)
	}
	return nil
}

func submissionFields(ev session.SubmissionEvent) map[string]any {
	return map[string]any{
		"label":     ev.Label,
		"signature": ev.Signature,
		"signer":    ev.Signer,
		"state":     ev.State,
		"stage":     ev.Stage,
		"kind":      ev.Kind,
		"error":     ev.Error,
		"slot":      strconv.FormatUint(ev.Slot, 10),
		"rebuilt":   ev.Rebuilt,
		"at":        ev.At.Unix(),
	}
}

// marketFields lamports 以字符串输出，避免 JSON number 精度丢失
func marketFields(rec decoder.Record, labels map[types.Pubkey]string) (map[string]any, bool) {
	switch rec.Kind {
	case decoder.KindMarket:
		m := rec.Market
		fields := map[string]any{
			"kind":       rec.Kind.String(),
			"address":    m.Address.String(),
			"creator":    m.Creator.String(),
			"label":      m.Question,
			"category":   m.Category,
			"region":     m.Region,
			"is_private": m.IsPrivate,
			"status":     m.Status.String(),
			"outcome":    outcomeValue(m.Outcome),
			"yes_pool":   strconv.FormatUint(m.YesPool, 10),
			"no_pool":    strconv.FormatUint(m.NoPool, 10),
			"total_bets": int64(m.TotalBets),
			"yes_odds":   m.YesOdds(),
			"created_at": m.CreatedAt,
			"expires_at": m.ExpiresAt,
		}
		if m.ResolvedAt != nil {
			fields["resolved_at"] = *m.ResolvedAt
		}
		return fields, true

	case decoder.KindCompressedMarket:
		m := rec.Compressed
		label, ok := labels[m.Address]
		if !ok {
			label = m.PlaceholderLabel()
		}
		fields := map[string]any{
			"kind":         rec.Kind.String(),
			"address":      m.Address.String(),
			"creator":      m.Creator.String(),
			"label":        label,
			"category":     m.CategoryName(),
			"region":       m.RegionName(),
			"resolve_date": m.ResolveDate,
			"is_active":    m.IsActive,
			"resolved":     m.Resolved,
			"outcome":      outcomeValue(m.Outcome),
			"yes_pool":     strconv.FormatUint(m.YesPool, 10),
			"no_pool":      strconv.FormatUint(m.NoPool, 10),
			"total_bets":   int64(m.TotalBets),
			"shielded":     int64(m.ShieldedBetCount),
			"yes_odds":     m.YesOdds(),
			"created_at":   m.CreatedAt,
		}
		if m.Oracle != nil {
			fields["oracle_authority"] = m.Oracle.Authority.String()
			fields["oracle_threshold"] = m.Oracle.Threshold
			fields["oracle_above"] = m.Oracle.Above
		}
		return fields, true

	default:
		return nil, false
	}
}

func outcomeValue(outcome *bool) any {
	if outcome == nil {
		return nil
	}
	if *outcome {
		return "yes"
	}
	return "no"
}
