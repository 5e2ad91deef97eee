// Package session 管理与设备之间的一条字节流连接：建立、读取、写入与断开。
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/codec"
	"github.com/Bonjomondo/Health-Check-App/internal/framing"
	"github.com/Bonjomondo/Health-Check-App/internal/metrics"
	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"go.uber.org/zap"
)

// SourceSerial 串口链路的数据来源名
const SourceSerial = "serial"

var (
	// ErrNotConnected 未连接时发送命令
	ErrNotConnected = errors.New("session is not connected")
	// ErrConnectAborted 拨号期间会话被断开
	ErrConnectAborted = errors.New("connect attempt aborted by disconnect")
)

const defaultReadBufferSize = 1024

// Session 连接会话
// 同一时间只有一个活动连接；传输句柄只归会话所有，外部代码不会直接访问。
type Session struct {
	dialer         Dialer
	bus            *bus.Bus
	decoder        *codec.Decoder
	logger         *zap.Logger
	metrics        *metrics.Metrics
	source         string
	now            func() time.Time
	readBufferSize int
	extractorOpts  []framing.Option

	connectMu sync.Mutex // 串行化 Connect

	mu     sync.Mutex // 保护以下字段
	state  models.ConnectionState
	target string
	conn   io.ReadWriteCloser
	cancel context.CancelFunc
	done   chan struct{} // 最近一个读循环的退出信号
	gen    uint64        // 每次 Connect/Disconnect 递增，用于识别过期的拨号和读循环

	writeMu sync.Mutex // 保证命令整条写入，不与其他 Send 交错
}

// Option 会话选项
type Option func(*Session)

// WithSource 设置数据来源名（默认 "serial"）
func WithSource(source string) Option {
	return func(s *Session) {
		s.source = source
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithClock 设置时钟（命令时间戳与读数时间戳）
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithReadBufferSize 设置每次读取的缓冲区大小
func WithReadBufferSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.readBufferSize = n
		}
	}
}

// WithExtractorOptions 设置帧提取器选项
func WithExtractorOptions(opts ...framing.Option) Option {
	return func(s *Session) {
		s.extractorOpts = append(s.extractorOpts, opts...)
	}
}

// NewSession 创建会话
func NewSession(dialer Dialer, b *bus.Bus, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		dialer:         dialer,
		bus:            b,
		logger:         logger,
		source:         SourceSerial,
		now:            time.Now,
		readBufferSize: defaultReadBufferSize,
		state:          models.Disconnected(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.decoder = codec.NewDecoder(s.now)
	s.extractorOpts = append(s.extractorOpts, framing.WithLogger(s.logger))
	return s
}

// Source 数据来源名
func (s *Session) Source() string {
	return s.source
}

// State 当前连接状态
func (s *Session) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target 当前（或最近一次）连接的设备地址
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Connect 连接设备
// 若已有 Connecting/Connected 会话，先断开并等待其读循环退出，再开始新的拨号。
// 拨号失败时状态变为 Failed(reason) 并发布 OnConnectionFailed；同时返回错误。
// 不能在读数钩子或同步订阅者中调用（会等待读循环退出）。
func (s *Session) Connect(ctx context.Context, target string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.Disconnect()
	s.waitLoop()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	dialCtx, cancelDial := context.WithCancel(ctx)
	s.cancel = cancelDial
	s.state = models.Connecting()
	s.target = target
	s.mu.Unlock()
	defer cancelDial()

	s.bus.SetState(s.source, target, models.Connecting())
	s.metrics.ObserveTransition(s.source, models.StateConnecting.String())
	s.logger.Info("Connecting to device",
		zap.String("source", s.source),
		zap.String("target", target),
	)

	conn, err := s.dialer.Dial(dialCtx, target)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.logger.Info("Connect attempt aborted",
			zap.String("target", target),
		)
		return ErrConnectAborted
	}
	if err != nil {
		terr := &TransportError{Op: "connect", Target: target, Err: err}
		s.state = models.Failed(terr.Error())
		s.cancel = nil
		s.mu.Unlock()

		s.logger.Error("Failed to connect to device",
			zap.String("source", s.source),
			zap.String("target", target),
			zap.Error(err),
		)
		s.metrics.ObserveTransition(s.source, models.StateFailed.String())
		s.bus.PublishConnectionFailed(s.source, target, terr.Error())
		return terr
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.conn = conn
	s.cancel = cancelLoop
	s.done = done
	s.state = models.Connected()
	go s.readLoop(loopCtx, gen, target, conn, done)
	s.mu.Unlock()

	return nil
}

// Disconnect 断开当前会话（幂等，可在任意 goroutine 调用）
// 关闭传输句柄以解除阻塞的读；OnDisconnected 由读循环退出时发布。
func (s *Session) Disconnect() {
	s.mu.Lock()
	prev := s.state
	target := s.target
	cancel := s.cancel
	conn := s.conn
	if prev.IsActive() {
		s.gen++
		s.state = models.Disconnected()
	}
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if !prev.IsActive() {
		return
	}

	s.logger.Info("Disconnecting from device",
		zap.String("source", s.source),
		zap.String("target", target),
	)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Error closing transport", zap.Error(err))
		}
		return
	}

	// 拨号尚未完成，没有读循环，这里直接发布
	s.metrics.ObserveTransition(s.source, models.StateDisconnected.String())
	s.bus.PublishDisconnected(s.source, target)
}

// Done 最近一个读循环的退出信号；从未连接过时返回已关闭的通道
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

func (s *Session) waitLoop() {
	<-s.Done()
}

// Send 发送命令（仅在 Connected 状态有效）
// 未连接时记录告警并返回 ErrNotConnected，不写入任何数据。
func (s *Session) Send(name string) error {
	s.mu.Lock()
	state := s.state
	conn := s.conn
	target := s.target
	s.mu.Unlock()

	if state.Kind != models.StateConnected || conn == nil {
		s.logger.Warn("Cannot send command: not connected",
			zap.String("command", name),
			zap.String("state", state.String()),
		)
		s.metrics.ObserveCommand(s.source, name, ErrNotConnected)
		return ErrNotConnected
	}

	payload, err := codec.EncodeCommand(models.NewCommand(name, s.now()))
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = writeFull(conn, payload)
	s.writeMu.Unlock()

	s.metrics.ObserveCommand(s.source, name, err)
	if err != nil {
		s.logger.Warn("Failed to send command",
			zap.String("command", name),
			zap.String("target", target),
			zap.Error(err),
		)
		return &TransportError{Op: "write", Target: target, Err: err}
	}

	s.logger.Debug("Command sent",
		zap.String("command", name),
		zap.String("target", target),
	)
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// readLoop 读循环：逐字节送入帧提取器，按流顺序发布解码结果
// 在 EOF、读错误或取消时退出，并在所有退出路径上关闭传输句柄。
func (s *Session) readLoop(ctx context.Context, gen uint64, target string, conn io.ReadWriteCloser, done chan struct{}) {
	defer close(done)
	defer func() {
		_ = conn.Close()

		s.mu.Lock()
		if s.gen == gen {
			s.state = models.Disconnected()
			s.conn = nil
			s.cancel = nil
		}
		s.mu.Unlock()

		s.metrics.ObserveTransition(s.source, models.StateDisconnected.String())
		s.bus.PublishDisconnected(s.source, target)
		s.logger.Info("Device disconnected",
			zap.String("source", s.source),
			zap.String("target", target),
		)
	}()

	s.metrics.ObserveTransition(s.source, models.StateConnected.String())
	s.bus.PublishConnected(s.source, target)
	s.logger.Info("Connected to device",
		zap.String("source", s.source),
		zap.String("target", target),
	)

	extractor := framing.NewExtractor(s.extractorOpts...)
	buf := make([]byte, s.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.metrics.AddBytes(s.source, n)
			for _, b := range buf[:n] {
				if frame, ok := extractor.Feed(b); ok {
					s.handleFrame(frame)
				}
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.logger.Debug("Read loop stopped", zap.String("target", target))
			case errors.Is(err, io.EOF):
				s.logger.Info("Device stream ended", zap.String("target", target))
			case isClosedError(err):
				s.logger.Info("Transport closed", zap.String("target", target))
			default:
				s.logger.Warn("Read error, closing session",
					zap.String("target", target),
					zap.Error(&TransportError{Op: "read", Target: target, Err: err}),
				)
			}
			return
		}

		// 设置了读超时的串口在超时时返回 (0, nil)
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	res := s.decoder.Decode(frame)
	s.metrics.ObserveFrame(s.source, res.Kind.String())

	switch res.Kind {
	case codec.KindReading:
		s.bus.PublishReading(s.source, res.Reading)
	case codec.KindBatteryUpdate:
		s.bus.PublishBattery(s.source, res.Battery)
	default:
		s.logger.Warn("Dropping malformed frame",
			zap.String("source", s.source),
			zap.String("reason", res.Reason),
			zap.Int("frame_size", len(frame)),
		)
	}
}
