package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command actions accepted on the command topic.
const (
	ActionRun = "run"
)

// Command is a message received on the command topic.
//
//	{"action":"run"}
type Command struct {
	Action string `json:"action"`
}

// CommandHandler acts on a decoded command. A returned error is logged.
type CommandHandler func(cmd Command) error

// DecodeCommand parses a command payload. The action is matched
// case-insensitively and must be one of the known actions.
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	switch cmd.Action {
	case ActionRun:
		return cmd, nil
	case "":
		return Command{}, fmt.Errorf("%w: missing action", ErrInvalidCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}

// OnCommand subscribes the command topic and routes decoded commands to
// handler. The subscription is restored after every reconnect.
func (c *Client) OnCommand(handler CommandHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.onCmd = handler
	c.mu.Unlock()

	token := c.client.Subscribe(c.topics.Command(), byte(c.cfg.QoS), c.dispatch)
	if !token.WaitTimeout(publishTimeout) {
		c.clearHandler()
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		c.clearHandler()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *Client) clearHandler() {
	c.mu.Lock()
	c.onCmd = nil
	c.mu.Unlock()
}

// dispatch is the paho callback for the command topic. It runs on a paho
// goroutine, so a panicking handler is recovered and logged.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log().Error("MQTT command handler panic recovered", "topic", msg.Topic(), "panic", r)
		}
	}()

	c.mu.RLock()
	handler := c.onCmd
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	cmd, err := DecodeCommand(msg.Payload())
	if err != nil {
		c.log().Warn("ignoring MQTT command", "topic", msg.Topic(), "error", err)
		return
	}
	if err := handler(cmd); err != nil {
		c.log().Warn("MQTT command failed", "topic", msg.Topic(), "action", cmd.Action, "error", err)
	}
}
