package bus

import (
	"context"

	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// Listener 观察者接口（对应 OnConnected / OnDisconnected / ... 回调）
type Listener interface {
	OnConnected(source, target string)
	OnDisconnected(source, target string)
	OnConnectionFailed(source, target, reason string)
	OnReading(source string, r models.Reading)
	OnBatteryUpdate(source string, level int)
	OnAlert(alert models.AlertEvent)
}

// NopListener 空实现，嵌入后只需覆盖关心的回调
type NopListener struct{}

func (NopListener) OnConnected(string, string)                {}
func (NopListener) OnDisconnected(string, string)             {}
func (NopListener) OnConnectionFailed(string, string, string) {}
func (NopListener) OnReading(string, models.Reading)          {}
func (NopListener) OnBatteryUpdate(string, int)               {}
func (NopListener) OnAlert(models.AlertEvent)                 {}

// Dispatch 把事件分派到 Listener 对应的回调
func Dispatch(ev Event, l Listener) {
	switch ev.Type {
	case EventConnected:
		l.OnConnected(ev.Source, ev.Target)
	case EventDisconnected:
		l.OnDisconnected(ev.Source, ev.Target)
	case EventConnectionFailed:
		l.OnConnectionFailed(ev.Source, ev.Target, ev.Reason)
	case EventReading:
		l.OnReading(ev.Source, ev.Reading)
	case EventBatteryUpdate:
		l.OnBatteryUpdate(ev.Source, ev.Battery)
	case EventAlert:
		l.OnAlert(ev.Alert)
	}
}

// Listen 订阅并在独立 goroutine 中把事件分派给 l
// ctx 取消或总线关闭时退出；返回的通道在退出后关闭。
func (b *Bus) Listen(ctx context.Context, name string, buffer int, l Listener) <-chan struct{} {
	sub := b.Subscribe(name, buffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				Dispatch(ev, l)
			}
		}
	}()

	return done
}
