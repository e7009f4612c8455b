package mq

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-topic"

// fakeProducer 按配置回调投递结果
type fakeProducer struct {
	mu         sync.Mutex
	messages   []*kafka.Message
	produceErr error
	deliverErr error
	silent     bool // 不投递，模拟超时
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()

	if f.silent {
		return nil
	}
	go func() {
		delivered := *msg
		delivered.TopicPartition.Error = f.deliverErr
		deliveryChan <- &delivered
	}()
	return nil
}

func (f *fakeProducer) sent() []*kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kafka.Message(nil), f.messages...)
}

func testJobs() []*KafkaJob {
	return []*KafkaJob{
		{Topic: testTopic, Value: []byte("test message 1")},
		{Topic: testTopic, Partition: 1, Key: []byte("k"), Value: []byte("test message 2")},
	}
}

func TestSendKafkaJobs(t *testing.T) {
	p := &fakeProducer{}
	ok, failed := SendKafkaJobs(context.Background(), p, testJobs(), time.Second)
	assert.Len(t, ok, 2)
	assert.Empty(t, failed)

	values := map[string]bool{}
	for _, m := range p.sent() {
		values[string(m.Value)] = true
		assert.Equal(t, testTopic, *m.TopicPartition.Topic)
	}
	assert.True(t, values["test message 1"])
	assert.True(t, values["test message 2"])
}

func TestSendKafkaJobsEmpty(t *testing.T) {
	ok, failed := SendKafkaJobs(context.Background(), &fakeProducer{}, nil, time.Second)
	assert.Empty(t, ok)
	assert.Empty(t, failed)
}

func TestSendKafkaJobsFailures(t *testing.T) {
	t.Run("produce 失败", func(t *testing.T) {
		p := &fakeProducer{produceErr: errors.New("queue full")}
		ok, failed := SendKafkaJobs(context.Background(), p, testJobs(), time.Second)
		assert.Empty(t, ok)
		assert.Len(t, failed, 2)
	})

	t.Run("投递失败", func(t *testing.T) {
		p := &fakeProducer{deliverErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}
		_, failed := SendKafkaJobs(context.Background(), p, testJobs(), time.Second)
		assert.Len(t, failed, 2)
	})

	t.Run("等待回执超时", func(t *testing.T) {
		p := &fakeProducer{silent: true}
		start := time.Now()
		_, failed := SendKafkaJobs(context.Background(), p, testJobs(), 20*time.Millisecond)
		require.Len(t, failed, 2)
		assert.ErrorIs(t, failed[0].Err, errDeliveryTimeout)
		assert.Equal(t, "test message 1", string(failed[0].Job.Value), "按原始顺序返回")
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("ctx 取消", func(t *testing.T) {
		p := &fakeProducer{silent: true}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, failed := SendKafkaJobs(ctx, p, testJobs(), time.Minute)
		require.Len(t, failed, 2)
		assert.ErrorIs(t, failed[0].Err, context.Canceled)
	})
}

// 需要本地 Kafka，设置 KAFKA_BROKERS 后运行
func TestSendKafkaJobs_RealKafka(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":        brokers,
		"client.id":                "test-producer",
		"acks":                     "all",
		"allow.auto.create.topics": true,
	})
	require.NoError(t, err)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, failed := SendKafkaJobs(ctx, producer, testJobs(), 2*time.Second)
	assert.Len(t, ok, 2)
	assert.Empty(t, failed)
	producer.Flush(1000)
}
