package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectProvider(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("空历史", func(t *testing.T) {
		assert.Equal(t, -1, SelectProvider(nil))
	})

	t.Run("全新节点选第一个", func(t *testing.T) {
		assert.Equal(t, 0, SelectProvider(make(ProviderHistory, 3)))
	})

	t.Run("失败次数少者优先", func(t *testing.T) {
		h := make(ProviderHistory, 3)
		h = h.RecordFailure(0, now).RecordFailure(0, now).RecordFailure(1, now)
		assert.Equal(t, 2, SelectProvider(h))
	})

	t.Run("失败次数相同选最近成功", func(t *testing.T) {
		h := make(ProviderHistory, 3)
		h = h.RecordSuccess(0, now).RecordSuccess(2, now.Add(time.Second))
		assert.Equal(t, 2, SelectProvider(h))
	})

	t.Run("成功后清零连续失败", func(t *testing.T) {
		h := make(ProviderHistory, 2)
		h = h.RecordFailure(0, now).RecordFailure(1, now).RecordFailure(1, now)
		assert.Equal(t, 0, SelectProvider(h))
		h = h.RecordSuccess(1, now.Add(time.Minute))
		assert.Equal(t, 1, SelectProvider(h))
		assert.Equal(t, 0, h[1].ConsecutiveFailures)
	})

	t.Run("记录不修改原历史", func(t *testing.T) {
		h := make(ProviderHistory, 1)
		_ = h.RecordFailure(0, now)
		assert.Equal(t, 0, h[0].ConsecutiveFailures)
	})
}
