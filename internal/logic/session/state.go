package session

// State 签名会话状态机：
// Idle -> BlockhashFetched -> Built -> Serialized -> Simulated -> Authorized -> Sent -> Confirmed | Failed
type State uint8

const (
	StateIdle State = iota
	StateBlockhashFetched
	StateBuilt
	StateSerialized
	StateSimulated
	StateAuthorized
	StateSent
	StateConfirmed
	StateFailed
)

var stateNames = [...]string{
	"idle",
	"blockhash_fetched",
	"built",
	"serialized",
	"simulated",
	"authorized",
	"sent",
	"confirmed",
	"failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
