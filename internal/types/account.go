package types

// AccountData 表示从账本读取到的一条原始账户数据（未解码）
type AccountData struct {
	Address Pubkey
	Owner   Pubkey
	Data    []byte
	Slot    uint64
}
