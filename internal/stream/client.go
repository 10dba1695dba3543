package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/sattrack/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes to a single SSE connection.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger
}

// write extends the write deadline, writes s, and flushes.
func (c *client) write(s string, message bool) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, s)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	metrics.RecordStreamWrite(n, message)
	return nil
}

// sendJSON sends v as an SSE "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.write("data: "+string(data)+"\n\n", true)
}

// sendKeepalive sends an SSE comment line.
func (c *client) sendKeepalive() error {
	return c.write(":\n\n", false)
}

func (c *client) sendRetry(ms int) error {
	return c.write(fmt.Sprintf("retry: %d\n\n", ms), false)
}
