package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one relay check.
const DefaultTimeout = 5 * time.Second

// Prober dials relays and reports the ones that complete a websocket
// handshake and answer a ping write.
type Prober struct {
	dialer  *websocket.Dialer
	timeout time.Duration
}

// NewProber creates a prober. A non-positive timeout uses DefaultTimeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		timeout: timeout,
	}
}

// Check dials one relay.
func (p *Prober) Check(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, resp, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
		return fmt.Errorf("ping %s: %w", url, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return nil
}

// Probe checks every relay concurrently and returns the healthy ones in
// their original order.
func (p *Prober) Probe(ctx context.Context, urls []string) []string {
	healthy := make([]bool, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			if err := p.Check(ctx, url); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Prober.Probe",
					"relay":    url,
					"error":    err.Error(),
				}).Warn("Relay unhealthy")
				return
			}
			healthy[i] = true
		}(i, url)
	}
	wg.Wait()

	out := make([]string, 0, len(urls))
	for i, ok := range healthy {
		if ok {
			out = append(out, urls[i])
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Prober.Probe",
		"checked":  len(urls),
		"healthy":  len(out),
	}).Info("Relay probe completed")

	return out
}
