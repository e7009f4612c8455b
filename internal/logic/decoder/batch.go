package decoder

import (
	"runtime/debug"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
	"ilowa-market-sol/pkg/utils"
)

// parallelThreshold 小批量直接串行，避免 goroutine 开销
const parallelThreshold = 64

// DecodeBatch 批量解码不可信的链上账户数据：
// - 每条记录独立解码，失败（含 panic）只记录日志并丢弃
// - 未知布局静默丢弃
// - 返回结果保持输入顺序
func DecodeBatch(accounts []types.AccountData) []Record {
	workers := consts.CpuCount
	if len(accounts) < parallelThreshold {
		workers = 1
	}

	results := utils.ParallelMap(accounts, workers, func(acc types.AccountData) Record {
		return safeDecode(acc)
	})

	records := make([]Record, 0, len(results))
	for _, r := range results {
		if r.Kind != KindUnknown {
			records = append(records, r)
		}
	}
	return records
}

func safeDecode(acc types.AccountData) (rec Record) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Decoder] panic: %v, account=%s, stack=%s", r, acc.Address, debug.Stack())
			rec = Record{Kind: KindUnknown}
		}
	}()

	rec, err := Decode(acc.Address, acc.Data)
	if err != nil {
		logger.Warnf("[Decoder] 丢弃无法解析的账户: account=%s, len=%d, err=%v", acc.Address, len(acc.Data), err)
		return Record{Kind: KindUnknown}
	}
	return rec
}

// SplitRecords 将解码结果按布局拆分
func SplitRecords(records []Record) ([]*MarketRecord, []*CompressedMarketRecord) {
	var (
		markets    []*MarketRecord
		compressed []*CompressedMarketRecord
	)
	for _, r := range records {
		switch r.Kind {
		case KindMarket:
			markets = append(markets, r.Market)
		case KindCompressedMarket:
			compressed = append(compressed, r.Compressed)
		}
	}
	return markets, compressed
}
