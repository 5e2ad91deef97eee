package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// commandMessage 下行命令报文 {"command": <string>, "timestamp": <epoch-millis>}
type commandMessage struct {
	Command   string `json:"command"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeCommand 编码命令，以换行符结尾
func EncodeCommand(cmd models.Command) ([]byte, error) {
	if cmd.Name == "" {
		return nil, errors.New("command name is required")
	}
	data, err := json.Marshal(commandMessage{
		Command:   cmd.Name,
		Timestamp: cmd.Timestamp.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeCommand 解码命令报文（允许结尾换行）
func DecodeCommand(data []byte) (models.Command, error) {
	var msg commandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Command{}, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if msg.Command == "" {
		return models.Command{}, errors.New("command name is missing")
	}
	return models.NewCommand(msg.Command, time.UnixMilli(msg.Timestamp)), nil
}
