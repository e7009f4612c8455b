package utils

// PartitionHashBytes 由地址字节选择 Kafka 分区，同一地址的事件总落在同一分区。
// 取 4 个分散的字节拼成 uint32 后取模；分区数为 2 的幂时只看最后一个采样字节。
func PartitionHashBytes(key []byte, partitions uint32) uint32 {
	if partitions <= 1 || len(key) < 28 {
		return 0
	}
	if partitions <= 16 && partitions&(partitions-1) == 0 {
		return uint32(key[27]) & (partitions - 1)
	}
	sample := uint32(key[7])<<24 | uint32(key[15])<<16 | uint32(key[19])<<8 | uint32(key[27])
	return sample % partitions
}
