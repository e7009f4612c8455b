package codec

import "errors"

// CodecError 族：单条记录/单个值的格式错误，调用方可跳过该条数据继续处理
var (
	ErrTruncated        = errors.New("codec: truncated input")
	ErrInvalidCharacter = errors.New("codec: invalid base58 character")
	ErrOverlong         = errors.New("codec: compact length overflows u32")
	ErrInvalidLength    = errors.New("codec: invalid length")
	ErrInvalidValue     = errors.New("codec: invalid value")
)
