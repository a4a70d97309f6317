package hedgews

import (
	"fmt"
	"time"
)

// heartbeatLoop probes the session at the configured interval and
// escalates stale links. It runs from the first explicit connect until
// disconnect, idling through non-connected states so recovery cycles
// are left to the reconnect timer.
func (c *Client) heartbeatLoop(done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.probe()
		}
	}
}

func (c *Client) probe() {
	if c.state.Load() != StateConnected {
		return
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.Ping("heartbeat"); err != nil {
		c.logger.Warn("heartbeat probe failed", "error", err)
		c.stats.SetLastError(fmt.Sprintf("heartbeat probe failed: %v", err))
		c.escalate()
		return
	}

	last := time.Unix(0, c.lastPong.Load())
	timeout := 2 * c.cfg.HeartbeatInterval
	if time.Since(last) > timeout {
		c.logger.Warn("connection stale, no heartbeat ack",
			"last_ack", last,
			"timeout", timeout)
		c.stats.SetLastError(ErrHeartbeatTimeout.Error())
		c.escalate()
	}
}
