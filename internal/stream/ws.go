package stream

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// maxFrameBytes bounds a single notification frame.
const maxFrameBytes = 1 << 20

// WebSocketDialer is the production Dialer: a WebSocket handshake with
// the bearer credential in the Authorization header.
type WebSocketDialer struct {
	// HTTPClient is used for the handshake; defaults to a 30s client.
	HTTPClient *http.Client
}

func (d *WebSocketDialer) Dial(ctx context.Context, url, token string) (Transport, error) {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &DialRejectedError{StatusCode: resp.StatusCode}
		}
		return nil, err
	}

	conn.SetReadLimit(maxFrameBytes)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client shutdown")
}
