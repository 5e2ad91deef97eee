// Package bus 事件总线：把连接状态、读数、电量与报警分发给多个订阅者，
// 并保存每个数据来源最近一次的设备/会话状态。
package bus

import (
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"go.uber.org/zap"
)

// EventType 事件类型
type EventType string

const (
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventConnectionFailed EventType = "connection_failed"
	EventReading          EventType = "reading"
	EventBatteryUpdate    EventType = "battery_update"
	EventAlert            EventType = "alert"
)

// Event 总线事件
type Event struct {
	Type      EventType
	Source    string // 数据来源链路："serial"、"mqtt"
	Target    string // 设备地址或 broker 地址
	Reason    string // EventConnectionFailed 的失败原因
	Reading   models.Reading
	Battery   int
	Alert     models.AlertEvent
	Timestamp time.Time
}

// ReadingHook 读数同步钩子，在读数分发给订阅者之前执行
type ReadingHook func(source string, r models.Reading)

// DefaultSendTimeout 订阅者缓冲区满时的最长等待时间
const DefaultSendTimeout = time.Second

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	hooks  []ReadingHook
	closed bool

	registry *Registry

	sendTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Option 总线选项
type Option func(*Bus)

// WithSendTimeout 设置投递超时；<= 0 表示一直等待
func WithSendTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.sendTimeout = d
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// New 创建事件总线
func New(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		sendTimeout: DefaultSendTimeout,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.registry = newRegistry(b.now)
	return b
}

// Registry 设备状态注册表
func (b *Bus) Registry() *Registry {
	return b.registry
}

// Subscribe 订阅全部事件；buffer 为订阅者通道容量
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	sub := &Subscription{
		name: name,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		bus:  b,
	}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		b.subs = append(b.subs, sub)
	}
	b.mu.Unlock()

	if closed {
		sub.shutdown()
	}
	return sub
}

// AddReadingHook 注册读数钩子
// 钩子在发布读数的 goroutine 中同步执行，其中发布的事件（如报警）会先于该读数到达订阅者。
func (b *Bus) AddReadingHook(hook ReadingHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, hook)
}

// SetState 只更新注册表中的连接状态，不产生事件（例如 Connecting）
func (b *Bus) SetState(source, target string, state models.ConnectionState) {
	b.registry.setState(source, target, state)
}

// PublishConnected 发布已连接事件
func (b *Bus) PublishConnected(source, target string) {
	b.registry.setState(source, target, models.Connected())
	b.publish(Event{Type: EventConnected, Source: source, Target: target})
}

// PublishDisconnected 发布断开事件
func (b *Bus) PublishDisconnected(source, target string) {
	b.registry.setState(source, target, models.Disconnected())
	b.publish(Event{Type: EventDisconnected, Source: source, Target: target})
}

// PublishConnectionFailed 发布连接失败事件
func (b *Bus) PublishConnectionFailed(source, target, reason string) {
	b.registry.setState(source, target, models.Failed(reason))
	b.publish(Event{Type: EventConnectionFailed, Source: source, Target: target, Reason: reason})
}

// PublishReading 发布读数：先执行钩子，再分发给订阅者
func (b *Bus) PublishReading(source string, r models.Reading) {
	b.registry.setReading(source, r)

	b.mu.RLock()
	hooks := make([]ReadingHook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	for _, hook := range hooks {
		hook(source, r)
	}

	b.publish(Event{Type: EventReading, Source: source, Reading: r})
}

// PublishBattery 发布电量更新
func (b *Bus) PublishBattery(source string, level int) {
	b.registry.setBattery(source, level)
	b.publish(Event{Type: EventBatteryUpdate, Source: source, Battery: level})
}

// PublishAlert 发布报警事件
func (b *Bus) PublishAlert(alert models.AlertEvent) {
	b.publish(Event{Type: EventAlert, Source: alert.Source, Alert: alert})
}

// Close 关闭总线及所有订阅
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

// publish 在锁外投递，阻塞的投递不会妨碍订阅关闭或其他发布者
func (b *Bus) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, ev)
	}
}

// deliver 按顺序投递；缓冲区满且超时则丢弃并告警，订阅关闭时立即返回
func (b *Bus) deliver(sub *Subscription, ev Event) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()

	select {
	case <-sub.done:
		return
	default:
	}

	select {
	case sub.ch <- ev:
		return
	default:
	}

	var timeout <-chan time.Time
	if b.sendTimeout > 0 {
		timer := time.NewTimer(b.sendTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sub.ch <- ev:
	case <-sub.done:
	case <-timeout:
		b.logger.Warn("Dropping event for slow subscriber",
			zap.String("subscriber", sub.name),
			zap.String("event_type", string(ev.Type)),
			zap.String("source", ev.Source),
		)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.shutdown()
}

// Subscription 订阅
type Subscription struct {
	name string
	ch   chan Event
	done chan struct{} // 关闭后正在等待的投递立即放弃
	bus  *Bus

	sendMu    sync.Mutex // 串行化对 ch 的发送，关闭 ch 前先取得
	closeOnce sync.Once
}

// Name 订阅者名称
func (s *Subscription) Name() string {
	return s.name
}

// Events 事件通道，订阅关闭后通道关闭
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close 取消订阅（幂等，不会被阻塞的发布者卡住）
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}
