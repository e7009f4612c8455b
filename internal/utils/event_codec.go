package utils

import (
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrShortEvent = errors.New("event payload shorter than type prefix")

// EncodeEvent 将 protobuf 消息编码为带事件类型前缀的二进制数据：
// - 前 4 字节为事件类型（uint32，小端序）
// - 后续为 protobuf 序列化数据（使用 MarshalAppend）
func EncodeEvent(eventType uint32, msg proto.Message) ([]byte, error) {
	const extraBuffer = 32

	size := proto.Size(msg)
	buf := make([]byte, 4, 4+size+extraBuffer)
	binary.LittleEndian.PutUint32(buf[:4], eventType)

	opts := proto.MarshalOptions{Deterministic: true}
	result, err := opts.MarshalAppend(buf, msg)
	if err != nil {
		return nil, fmt.Errorf("EncodeEvent: marshal %T: %w", msg, err)
	}
	return result, nil
}

// EncodeFields 将字段表编码为 structpb.Struct 事件
func EncodeFields(eventType uint32, fields map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("EncodeFields: %w", err)
	}
	return EncodeEvent(eventType, st)
}

// DecodeFields EncodeFields 的逆过程，供消费端与测试使用
func DecodeFields(data []byte) (uint32, *structpb.Struct, error) {
	if len(data) < 4 {
		return 0, nil, ErrShortEvent
	}
	eventType := binary.LittleEndian.Uint32(data[:4])
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data[4:], st); err != nil {
		return eventType, nil, fmt.Errorf("DecodeFields: %w", err)
	}
	return eventType, st, nil
}
