package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// WebSocket is a Transport over a single websocket connection. JSON control
// messages travel as text frames and audio as binary frames.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	done         chan struct{}
	closing      bool
	sessionID    string
	serverParams protocol.AudioParams
	framer       *framer

	onJSON         func([]byte)
	onAudio        func(*protocol.AudioStreamPacket)
	onConnected    func(string)
	onDisconnected func(error)

	// wmu serializes writes; gorilla allows one concurrent writer.
	wmu sync.Mutex
}

// NewWebSocket creates a websocket transport.
func NewWebSocket(cfg Config, logger *slog.Logger) (*WebSocket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WebSocket{
		cfg:    cfg,
		logger: log.Or(logger, "transport"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HelloTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}, nil
}

func (w *WebSocket) OnIncomingJSON(fn func(raw []byte)) {
	w.mu.Lock()
	w.onJSON = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnIncomingAudio(fn func(pkt *protocol.AudioStreamPacket)) {
	w.mu.Lock()
	w.onAudio = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnConnected(fn func(sessionID string)) {
	w.mu.Lock()
	w.onConnected = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnDisconnected(fn func(err error)) {
	w.mu.Lock()
	w.onDisconnected = fn
	w.mu.Unlock()
}

// Open dials the server, sends the client hello and waits for the server hello.
func (w *WebSocket) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	header := http.Header{}
	if w.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	header.Set("Protocol-Version", strconv.Itoa(w.cfg.ProtocolVersion))
	if w.cfg.DeviceID != "" {
		header.Set("Device-Id", w.cfg.DeviceID)
	}
	if w.cfg.ClientID != "" {
		header.Set("Client-Id", w.cfg.ClientID)
	}

	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		return &ConnectionError{Op: "dial", URL: w.cfg.URL, Err: err}
	}

	hello, err := w.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	conn.SetPingHandler(func(appData string) error {
		w.wmu.Lock()
		defer w.wmu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	params := w.cfg.AudioParams
	if hello.AudioParams != nil {
		params = *hello.AudioParams
	}

	w.mu.Lock()
	w.conn = conn
	w.done = make(chan struct{})
	w.closing = false
	w.sessionID = hello.SessionID
	w.serverParams = params
	w.framer = newFramer(w.cfg.ProtocolVersion, hello.SessionID, params)
	done := w.done
	onConnected := w.onConnected
	w.mu.Unlock()

	go w.readLoop(conn, done)
	if w.cfg.KeepAlive > 0 {
		go w.keepAlive(conn, done)
	}

	w.logger.Info("session opened",
		"url", w.cfg.URL,
		"session_id", hello.SessionID,
		"protocol_version", w.cfg.ProtocolVersion,
		"server_sample_rate", params.SampleRate,
	)
	if onConnected != nil {
		onConnected(hello.SessionID)
	}
	return nil
}

func (w *WebSocket) handshake(ctx context.Context, conn *websocket.Conn) (protocol.HelloEvent, error) {
	msg := protocol.NewClientHello(w.cfg.ProtocolVersion, "websocket", w.cfg.AudioParams)
	data, err := json.Marshal(msg)
	if err != nil {
		return protocol.HelloEvent{}, &ConnectionError{Op: "hello", Err: err}
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return protocol.HelloEvent{}, &ConnectionError{Op: "hello", URL: w.cfg.URL, Err: err}
	}

	deadline := time.Now().Add(w.cfg.HelloTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				err = ErrHandshakeTimeout
			}
			return protocol.HelloEvent{}, &ConnectionError{Op: "hello", URL: w.cfg.URL, Err: err}
		}
		if mt != websocket.TextMessage {
			continue
		}
		in, err := protocol.ParseInbound(raw)
		if err != nil {
			w.logger.Debug("ignoring message before hello", "error", err)
			continue
		}
		hello, ok := in.(protocol.HelloEvent)
		if !ok {
			continue
		}
		if hello.Transport != "" && hello.Transport != "websocket" {
			return protocol.HelloEvent{}, &ConnectionError{Op: "hello", URL: w.cfg.URL,
				Err: fmt.Errorf("%w: transport %q", ErrHandshakeRejected, hello.Transport)}
		}
		return hello, nil
	}
}

func (w *WebSocket) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		if w.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			w.drop(conn, err)
			return
		}

		switch mt {
		case websocket.TextMessage:
			w.mu.Lock()
			fn := w.onJSON
			w.mu.Unlock()
			if fn != nil {
				fn(data)
			}
		case websocket.BinaryMessage:
			w.mu.Lock()
			fn, fr, sid := w.onAudio, w.framer, w.sessionID
			w.mu.Unlock()
			if fn == nil {
				continue
			}
			pkt, err := fr.unmarshal(sid, data)
			if err != nil {
				w.logger.Warn("dropping audio frame", "error", err)
				continue
			}
			fn(pkt)
		}
	}
}

func (w *WebSocket) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			w.wmu.Unlock()
			if err != nil {
				w.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// drop tears down conn once and reports the disconnect.
func (w *WebSocket) drop(conn *websocket.Conn, cause error) {
	w.mu.Lock()
	if w.conn != conn {
		w.mu.Unlock()
		return
	}
	closing := w.closing
	sid := w.sessionID
	w.conn = nil
	w.sessionID = ""
	close(w.done)
	fn := w.onDisconnected
	w.mu.Unlock()

	conn.Close()

	var err error
	if !closing {
		err = &ConnectionError{Op: "read", URL: w.cfg.URL, Err: cause}
		w.logger.Warn("session lost", "session_id", sid, "error", cause)
	} else {
		w.logger.Info("session closed", "session_id", sid)
	}
	if fn != nil {
		fn(err)
	}
}

// Close sends goodbye, closes the connection and waits for the read loop.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn, done, sid := w.conn, w.done, w.sessionID
	if conn == nil || w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	w.mu.Unlock()

	if data, err := json.Marshal(protocol.NewGoodbye(sid)); err == nil {
		_ = w.write(conn, websocket.TextMessage, data)
	}
	w.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	err := conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return err
}

func (w *WebSocket) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil && !w.closing
}

func (w *WebSocket) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

func (w *WebSocket) ServerAudioParams() protocol.AudioParams {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serverParams
}

// SendText tags msg with the current session id unless it already has one.
func (w *WebSocket) SendText(msg protocol.Message) error {
	conn, sid, _ := w.current()
	if conn == nil {
		return &ConnectionError{Op: "write", Err: ErrNotConnected}
	}
	if msg.SessionID == "" {
		msg.SessionID = sid
	}
	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("transport: encode %s message: %w", msg.Type, err)
	}
	return w.write(conn, websocket.TextMessage, data)
}

func (w *WebSocket) SendAudio(pkt *protocol.AudioStreamPacket) error {
	conn, _, fr := w.current()
	if conn == nil {
		return &ConnectionError{Op: "write", Err: ErrNotConnected}
	}
	data, err := fr.marshal(pkt)
	if err != nil {
		return fmt.Errorf("transport: frame audio: %w", err)
	}
	return w.write(conn, websocket.BinaryMessage, data)
}

func (w *WebSocket) SendStartListening(mode protocol.ListeningMode) error {
	return w.SendText(protocol.NewListenStart(w.SessionID(), mode))
}

func (w *WebSocket) current() (*websocket.Conn, string, *framer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return nil, "", nil
	}
	return w.conn, w.sessionID, w.framer
}

func (w *WebSocket) write(conn *websocket.Conn, mt int, data []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(mt, data); err != nil {
		return &ConnectionError{Op: "write", URL: w.cfg.URL, Err: err}
	}
	return nil
}

var _ Transport = (*WebSocket)(nil)
