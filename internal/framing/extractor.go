// Package framing 从无界字节流中切分出完整的 JSON 对象帧。
//
// 帧边界仅依据花括号深度判断：遇到 '{' 进入帧并计数，遇到 '}' 减一，
// 深度回到 0 时输出整帧；帧外的字节（噪声）直接丢弃。
//
// 已知限制：不识别字符串中的花括号，例如 {"note":"a{b"} 会使深度计数错乱，
// 导致帧边界错误。这是设备协议的既有行为，这里按原样保留。
package framing

import (
	"go.uber.org/zap"
)

// Extractor 帧提取器（单线程使用，每个会话一个实例）
type Extractor struct {
	depth   int
	inFrame bool
	buf     []byte

	maxFrameSize int // 0 = 不限制
	logger       *zap.Logger
}

// Option 提取器选项
type Option func(*Extractor)

// WithMaxFrameSize 限制未闭合帧的最大长度，超出时丢弃当前帧
// 默认不限制（未闭合帧会一直增长，直到下一个平衡的 '}' 出现）
func WithMaxFrameSize(n int) Option {
	return func(e *Extractor) {
		e.maxFrameSize = n
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor 创建帧提取器
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Feed 输入一个字节；若该字节使一帧完整，返回该帧
func (e *Extractor) Feed(b byte) ([]byte, bool) {
	switch b {
	case '{':
		if !e.inFrame {
			e.buf = e.buf[:0]
			e.inFrame = true
			e.depth = 0
		}
		e.depth++
		e.buf = append(e.buf, b)
	case '}':
		if e.inFrame {
			e.buf = append(e.buf, b)
		}
		e.depth--
		if e.depth == 0 && e.inFrame {
			frame := make([]byte, len(e.buf))
			copy(frame, e.buf)
			e.buf = e.buf[:0]
			e.inFrame = false
			return frame, true
		}
	default:
		if !e.inFrame {
			return nil, false
		}
		e.buf = append(e.buf, b)
	}

	if e.maxFrameSize > 0 && e.inFrame && len(e.buf) > e.maxFrameSize {
		e.logger.Warn("Discarding oversized partial frame",
			zap.Int("frame_size", len(e.buf)),
			zap.Int("max_frame_size", e.maxFrameSize),
		)
		e.Reset()
	}
	return nil, false
}

// Write 输入一段字节，按流顺序返回其中完成的帧
func (e *Extractor) Write(p []byte) [][]byte {
	var frames [][]byte
	for _, b := range p {
		if frame, ok := e.Feed(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Reset 清空状态（新会话开始时调用）
func (e *Extractor) Reset() {
	e.depth = 0
	e.inFrame = false
	e.buf = e.buf[:0]
}

// Pending 当前未闭合帧的长度
func (e *Extractor) Pending() int {
	return len(e.buf)
}

// Extract 对完整缓冲区一次性执行相同的计数规则
func Extract(data []byte) [][]byte {
	var frames [][]byte
	depth := 0
	start := -1
	for i, b := range data {
		switch b {
		case '{':
			if start < 0 {
				start = i
				depth = 0
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				frame := make([]byte, i-start+1)
				copy(frame, data[start:i+1])
				frames = append(frames, frame)
				start = -1
			}
		}
	}
	return frames
}
