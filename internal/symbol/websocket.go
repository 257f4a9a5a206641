package symbol

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketProber checks a gateway's /ws endpoint. A gateway is considered
// available once it greets the client with its subscription uid.
type WebSocketProber struct {
	timeout   time.Duration
	httpPort  int
	httpsPort int
}

func NewWebSocketProber(timeout time.Duration) *WebSocketProber {
	return &WebSocketProber{
		timeout:   timeout,
		httpPort:  DefaultHTTPPort,
		httpsPort: DefaultHTTPSPort,
	}
}

// URL returns the websocket endpoint for host
func (p *WebSocketProber) URL(host string, secure bool) string {
	if secure {
		return fmt.Sprintf("wss://%s/ws", net.JoinHostPort(host, strconv.Itoa(p.httpsPort)))
	}
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, strconv.Itoa(p.httpPort)))
}

// IsAvailable dials url and waits for the uid greeting
func (p *WebSocketProber) IsAvailable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: p.timeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var greeting struct {
		UID string `json:"uid"`
	}
	_, message, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(message, &greeting); err != nil {
		return false
	}
	return greeting.UID != ""
}
