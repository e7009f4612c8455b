package consts

import "runtime"

const (
	// LamportsPerSol 1 SOL = 1e9 lamports
	LamportsPerSol uint64 = 1_000_000_000

	// MinBetLamports / MaxBetLamports 与链上程序的下注上下限保持一致（0.01 SOL ~ 100 SOL）
	MinBetLamports uint64 = 10_000_000
	MaxBetLamports uint64 = 100_000_000_000

	// PlatformFeeBps 平台手续费（万分比），0.5%
	PlatformFeeBps uint64 = 50

	// MaxResolveHorizonSec 压缩市场结算日期最远一年
	MaxResolveHorizonSec int64 = 365 * 24 * 60 * 60

	// MaxQuestionLen 问题文本最大字节数
	MaxQuestionLen = 280

	// MaxTransactionSize 单笔交易序列化后的最大字节数（IPv6 MTU - 头部）
	MaxTransactionSize = 1232
)

// CpuCount 表示逻辑 CPU 核心数，用于控制并发任务调度上限
var CpuCount = runtime.NumCPU()
