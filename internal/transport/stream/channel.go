package stream

import (
	"errors"
	"net/http"
)

// HTTPChannel adapts an http.ResponseWriter. Flushing goes through http.ResponseController,
// so wrapped writers that implement Unwrap keep streaming.
type HTTPChannel struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
}

// NewHTTPChannel wraps w.
func NewHTTPChannel(w http.ResponseWriter) *HTTPChannel {
	return &HTTPChannel{w: w, rc: http.NewResponseController(w)}
}

func (c *HTTPChannel) Write(p []byte) (int, error) {
	if c.closed {
		return 0, http.ErrBodyNotAllowed
	}
	return c.w.Write(p)
}

// Flush pushes buffered bytes to the client. Writers without flush support are ignored.
func (c *HTTPChannel) Flush() error {
	if c.closed {
		return nil
	}
	if err := c.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close marks the channel done; the server finishes the response when the handler returns.
func (c *HTTPChannel) Close() error {
	c.closed = true
	return nil
}
