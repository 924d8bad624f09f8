package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"studysync-backend/internal/protocol"
)

// WSTransport carries room events over a WebSocket connection and
// satisfies EventSender. Writes are serialized with a mutex because
// the underlying connection allows only one concurrent writer.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial 룸 채널 WebSocket 연결. The upgrade gate reads the token from
// the query string, so it rides there; the bearer header is sent too
// for proxies that strip query parameters.
func Dial(ctx context.Context, rawURL, token string) (*WSTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &WSTransport{conn: conn}, nil
}

// Emit sends one event envelope to the server.
func (t *WSTransport) Emit(event, room string, data any) error {
	msg, err := protocol.Marshal(event, room, data)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

// Listen reads broadcasts until the connection drops or ctx is
// cancelled, feeding each envelope to the agent.
func (t *WSTransport) Listen(ctx context.Context, a *RoomAgent) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read room channel: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			// Malformed frames are dropped, matching the server relay.
			continue
		}
		a.HandleEvent(ctx, env)
	}
}

// Close 연결 종료
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// APIClient calls the snapshot and session endpoints with a bearer
// token. It satisfies SnapshotClient and MetricsClient.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient API 클라이언트 생성
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Read fetches the current room snapshot.
func (c *APIClient) Read(ctx context.Context, roomID string) (protocol.Snapshot, error) {
	var snap protocol.Snapshot
	err := c.do(ctx, http.MethodGet, "/room/"+roomID, nil, &snap)
	return snap, err
}

// Write replaces the room snapshot.
func (c *APIClient) Write(ctx context.Context, roomID string, snap protocol.Snapshot) error {
	return c.do(ctx, http.MethodPost, "/room/"+roomID, snap, nil)
}

// Upsert saves the session metrics for the authenticated user.
func (c *APIClient) Upsert(ctx context.Context, roomID string, m Metrics) error {
	return c.do(ctx, http.MethodPost, "/session/"+roomID, m, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
