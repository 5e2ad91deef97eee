package models

// ConnectionStateKind 连接状态类型
type ConnectionStateKind int

const (
	StateDisconnected ConnectionStateKind = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String 返回状态名称
func (k ConnectionStateKind) String() string {
	switch k {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return "Disconnected"
	}
}

// ConnectionState 连接生命周期状态
// Reason 仅在 StateFailed 时有值（包含底层传输错误信息）
type ConnectionState struct {
	Kind   ConnectionStateKind `json:"kind"`
	Reason string              `json:"reason,omitempty"`
}

// Disconnected 未连接
func Disconnected() ConnectionState { return ConnectionState{Kind: StateDisconnected} }

// Connecting 连接中
func Connecting() ConnectionState { return ConnectionState{Kind: StateConnecting} }

// Connected 已连接
func Connected() ConnectionState { return ConnectionState{Kind: StateConnected} }

// Failed 连接失败
func Failed(reason string) ConnectionState {
	return ConnectionState{Kind: StateFailed, Reason: reason}
}

// IsActive 是否存在活动会话（Connecting 或 Connected）
func (s ConnectionState) IsActive() bool {
	return s.Kind == StateConnecting || s.Kind == StateConnected
}

func (s ConnectionState) String() string {
	if s.Kind == StateFailed && s.Reason != "" {
		return "Failed(" + s.Reason + ")"
	}
	return s.Kind.String()
}
