package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type wsTransport struct {
	conn *websocket.Conn
	peer string
}

func (t *wsTransport) Post(ctx context.Context, env Envelope) error {
	if err := wsjson.Write(ctx, t.conn, env); err != nil {
		return wsErr(err)
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) (Event, error) {
	var env Envelope
	if err := wsjson.Read(ctx, t.conn, &env); err != nil {
		return Event{}, wsErr(err)
	}
	return Event{Origin: t.peer, Envelope: env}, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

func wsErr(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Handler accepts a child window over a websocket and serves it with p.
// The child's origin is taken from the handshake.
func Handler(p *Parent, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = p.logger
	}
	var patterns []string
	if u, err := url.Parse(p.opts.ChildOrigin); err == nil && u.Host != "" {
		patterns = append(patterns, u.Host)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}
		t := &wsTransport{conn: conn, peer: r.Header.Get("Origin")}
		if err := p.Open(t); err != nil {
			logger.Warn("rejecting monitor window", "origin", t.peer, "error", err)
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
		if err := p.Serve(r.Context(), t); err != nil {
			logger.Warn("monitor window connection ended", "error", err)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
}

// Dial connects to the parent at rawURL, presenting origin as the child's
// origin. Messages received on the returned transport carry the parent's
// origin, derived from rawURL.
func Dial(ctx context.Context, rawURL, origin string) (Transport, error) {
	peer, err := originOf(rawURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &wsTransport{conn: conn, peer: peer}, nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}
