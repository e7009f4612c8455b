package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/logic/session"
)

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "etc", "markets.yaml"))
	require.NoError(t, err)

	assert.Len(t, c.Ledger.Endpoints, 2)
	opt := c.Ledger.ToLedgerOption()
	assert.Equal(t, 10*time.Second, opt.RequestTimeout)
	assert.Equal(t, "confirmed", opt.Commitment)

	pid, err := c.Program.ProgramPubkey()
	require.NoError(t, err)
	assert.Equal(t, consts.MarketProgram, pid)

	p := c.Session.ToPolicy(c.Ledger.Commitment)
	assert.Equal(t, 3, p.Blockhash.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, p.Blockhash.InitialDelay)
	assert.Equal(t, 30*time.Second, p.ConfirmDeadline)
	assert.Equal(t, []time.Duration{2 * time.Second, 6 * time.Second}, p.ResyncDelays)

	assert.Equal(t, "Ilowa", c.Signer.ToIdentity().Name)
	assert.Equal(t, 720*time.Hour, c.Redis.ToLabelStoreOption().TTL)
	assert.Equal(t, "127.0.0.1:6379", c.Redis.ToRedisOptions().Addr)

	k := c.KafkaProducerConf.ToKafkaOption()
	assert.Equal(t, "ilowa_markets", k.Topic)
	assert.Equal(t, 4, k.Partitions)
	assert.Equal(t, 3*time.Second, c.KafkaProducerConf.ToPublisherOption().SendTimeout)

	s := c.Grpc.ToStreamOption(pid, c.Ledger.Commitment)
	assert.Equal(t, []string{consts.MarketProgramStr}, s.Owners)
	assert.Equal(t, 60, s.IdleTimeoutSec)

	sync := c.Sync.ToSyncOption(pid)
	assert.Equal(t, 30*time.Second, sync.Interval)
	assert.Equal(t, pid, sync.ProgramID)

	assert.Equal(t, "info", c.LogConf.ToLogOption().Level)
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("ledger:\n  endpoints: [http://127.0.0.1:8899]\n"))
	require.NoError(t, err)

	pid, err := c.Program.ProgramPubkey()
	require.NoError(t, err)
	assert.Equal(t, consts.MarketProgram, pid)
	assert.Equal(t, session.DefaultPolicy(), c.Session.ToPolicy(""))
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"无 RPC 节点":      "ledger:\n  endpoints: []\n",
		"未知 commitment": "ledger:\n  endpoints: [a]\n  commitment: instant\n",
		"非法 program id": "ledger:\n  endpoints: [a]\nprogram:\n  program_id: 0OIl\n",
		"kafka 缺 topic": "ledger:\n  endpoints: [a]\nkafka_producer:\n  brokers: b:9092\n",
		"YAML 语法错误":     "ledger: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(os.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
