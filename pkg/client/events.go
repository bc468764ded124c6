package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Events opens the /api/events stream. The first event carries the current
// state. The channel is closed when the connection ends or ctx is done.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	wsURL := c.baseURL + "/api/events"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	dialer := websocket.Dialer{
		Jar:              c.httpClient.Jar,
		HandshakeTimeout: c.httpClient.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			defer resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
