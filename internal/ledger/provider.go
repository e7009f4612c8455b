package ledger

import "time"

// ProviderStat 单个 RPC 节点的调用历史
type ProviderStat struct {
	LastSuccess         time.Time
	LastFailure         time.Time
	ConsecutiveFailures int
}

// ProviderHistory 下标与节点列表一一对应，值语义，由调用方持有
type ProviderHistory []ProviderStat

// SelectProvider 纯函数：选择连续失败次数最少的节点；
// 次数相同时选最近成功的；仍相同时选下标最小的。空历史返回 -1。
func SelectProvider(history ProviderHistory) int {
	best := -1
	for i, s := range history {
		if best < 0 {
			best = i
			continue
		}
		b := history[best]
		switch {
		case s.ConsecutiveFailures < b.ConsecutiveFailures:
			best = i
		case s.ConsecutiveFailures == b.ConsecutiveFailures && s.LastSuccess.After(b.LastSuccess):
			best = i
		}
	}
	return best
}

// RecordSuccess 返回记录了一次成功后的新历史
func (h ProviderHistory) RecordSuccess(index int, at time.Time) ProviderHistory {
	out := h.clone()
	if index >= 0 && index < len(out) {
		out[index].LastSuccess = at
		out[index].ConsecutiveFailures = 0
	}
	return out
}

// RecordFailure 返回记录了一次失败后的新历史
func (h ProviderHistory) RecordFailure(index int, at time.Time) ProviderHistory {
	out := h.clone()
	if index >= 0 && index < len(out) {
		out[index].LastFailure = at
		out[index].ConsecutiveFailures++
	}
	return out
}

func (h ProviderHistory) clone() ProviderHistory {
	out := make(ProviderHistory, len(h))
	copy(out, h)
	return out
}
