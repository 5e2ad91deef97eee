package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Dialer 建立到设备的字节流连接
// 发现/配对不在这里处理，调用方直接给出设备地址。
type Dialer interface {
	Dial(ctx context.Context, target string) (io.ReadWriteCloser, error)
}

// DialerFunc 函数适配器
type DialerFunc func(ctx context.Context, target string) (io.ReadWriteCloser, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	return f(ctx, target)
}

// SerialDialer 串口（含蓝牙 SPP 映射的 /dev/rfcommN）连接
type SerialDialer struct {
	BaudRate    int
	ReadTimeout time.Duration // 0 = 阻塞读，关闭端口时解除阻塞
}

// NewSerialDialer 创建串口拨号器（8N1）
func NewSerialDialer(baudRate int, readTimeout time.Duration) *SerialDialer {
	if baudRate <= 0 {
		baudRate = 115200
	}
	return &SerialDialer{BaudRate: baudRate, ReadTimeout: readTimeout}
}

// Dial 打开串口
func (d *SerialDialer) Dial(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(target, &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	// 打开期间 ctx 被取消，释放端口
	if err := ctx.Err(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// TransportError 传输层错误（连接/读/写）
type TransportError struct {
	Op     string // "connect", "read", "write"
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isClosedError 读循环因端口被关闭而返回的错误
func isClosedError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var portErr serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	var portErrPtr *serial.PortError
	if errors.As(err, &portErrPtr) {
		return portErrPtr.Code() == serial.PortClosed
	}
	return false
}
