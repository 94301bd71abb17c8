package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single message. A pass report for a backlog of
// several days stays far below it.
const maxPayloadSize = 1 << 20

// PublishPass publishes a pass report as retained JSON on the pass topic,
// so a dashboard subscribing later still sees the latest pass.
func (c *Client) PublishPass(report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: encoding pass report: %w", ErrPublishFailed, err)
	}
	return c.publish(c.topics.Pass(), payload, true)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
