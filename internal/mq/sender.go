package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer kafka.Producer 的发送子集
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// KafkaJob 表示一条需要发送的 Kafka 消息
type KafkaJob struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
}

// KafkaSendResult 表示每条消息的发送结果
type KafkaSendResult struct {
	Job *KafkaJob
	Err error
}

var errDeliveryTimeout = errors.New("delivery timeout")

// SendKafkaJobs 发送一批消息并等待回执：
//  1. 所有消息共用一个带缓冲的回执通道，Opaque 记录消息下标
//  2. Produce 失败的消息立即记为失败
//  3. 在 timeout 内收集回执；超时或 ctx 取消时，未回执的消息全部记为失败
//
// 通道容量等于消息数，迟到的回执不会阻塞 librdkafka 的回调线程。
func SendKafkaJobs(
	ctx context.Context,
	producer Producer,
	jobs []*KafkaJob,
	timeout time.Duration,
) (ok []*KafkaJob, failed []KafkaSendResult) {
	if len(jobs) == 0 {
		return nil, nil
	}

	deliveryChan := make(chan kafka.Event, len(jobs))
	pending := make(map[int]*KafkaJob, len(jobs))
	for i, job := range jobs {
		err := producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     &job.Topic,
				Partition: job.Partition,
			},
			Key:    job.Key,
			Value:  job.Value,
			Opaque: i,
		}, deliveryChan)
		if err != nil {
			failed = append(failed, KafkaSendResult{Job: job, Err: fmt.Errorf("produce error: %w", err)})
			continue
		}
		pending[i] = job
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case e := <-deliveryChan:
			msg, isMsg := e.(*kafka.Message)
			if !isMsg {
				continue
			}
			index, _ := msg.Opaque.(int)
			job, found := pending[index]
			if !found {
				continue
			}
			delete(pending, index)
			if msg.TopicPartition.Error != nil {
				failed = append(failed, KafkaSendResult{Job: job, Err: msg.TopicPartition.Error})
			} else {
				ok = append(ok, job)
			}
		case <-timer.C:
			return ok, appendPending(failed, jobs, pending, fmt.Errorf("%w (>%v)", errDeliveryTimeout, timeout))
		case <-ctx.Done():
			return ok, appendPending(failed, jobs, pending, fmt.Errorf("ctx cancelled: %w", ctx.Err()))
		}
	}
	return ok, failed
}

// appendPending 按原始顺序把未回执的消息记为失败
func appendPending(failed []KafkaSendResult, jobs []*KafkaJob, pending map[int]*KafkaJob, err error) []KafkaSendResult {
	for i, job := range jobs {
		if _, found := pending[i]; found {
			failed = append(failed, KafkaSendResult{Job: job, Err: err})
		}
	}
	return failed
}
