package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// Mock is an in-memory Transport for tests and offline runs. Incoming
// traffic is injected with Deliver and DeliverAudio.
type Mock struct {
	mu        sync.Mutex
	open      bool
	sessionID string
	params    protocol.AudioParams
	openErr   error
	sendErr   error
	opens     int
	texts     []protocol.Message
	audio     []*protocol.AudioStreamPacket

	onJSON         func([]byte)
	onAudio        func(*protocol.AudioStreamPacket)
	onConnected    func(string)
	onDisconnected func(error)
}

// NewMock creates a closed mock that opens with the given session id.
func NewMock(sessionID string) *Mock {
	return &Mock{sessionID: sessionID, params: protocol.DefaultAudioParams()}
}

// FailOpen makes subsequent Open calls return err. nil clears it.
func (m *Mock) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// FailSend makes subsequent sends return err. nil clears it.
func (m *Mock) FailSend(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *Mock) Open(ctx context.Context) error {
	m.mu.Lock()
	m.opens++
	if m.openErr != nil {
		err := m.openErr
		m.mu.Unlock()
		return &ConnectionError{Op: "dial", URL: "mock://", Err: err}
	}
	if m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = true
	sid, fn := m.sessionID, m.onConnected
	m.mu.Unlock()
	if fn != nil {
		fn(sid)
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	m.texts = append(m.texts, protocol.NewGoodbye(m.sessionID))
	fn := m.onDisconnected
	m.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
	return nil
}

// Disconnect simulates losing the connection.
func (m *Mock) Disconnect(cause error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	fn := m.onDisconnected
	m.mu.Unlock()
	if fn != nil {
		fn(&ConnectionError{Op: "read", URL: "mock://", Err: cause})
	}
}

func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Mock) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ""
	}
	return m.sessionID
}

func (m *Mock) ServerAudioParams() protocol.AudioParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

func (m *Mock) SendText(msg protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendCheck(); err != nil {
		return err
	}
	if msg.SessionID == "" {
		msg.SessionID = m.sessionID
	}
	m.texts = append(m.texts, msg)
	return nil
}

func (m *Mock) SendAudio(pkt *protocol.AudioStreamPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendCheck(); err != nil {
		return err
	}
	m.audio = append(m.audio, pkt)
	return nil
}

func (m *Mock) SendStartListening(mode protocol.ListeningMode) error {
	return m.SendText(protocol.NewListenStart("", mode))
}

func (m *Mock) sendCheck() error {
	if !m.open {
		return &ConnectionError{Op: "write", Err: ErrNotConnected}
	}
	if m.sendErr != nil {
		return &ConnectionError{Op: "write", URL: "mock://", Err: m.sendErr}
	}
	return nil
}

func (m *Mock) OnIncomingJSON(fn func(raw []byte)) {
	m.mu.Lock()
	m.onJSON = fn
	m.mu.Unlock()
}

func (m *Mock) OnIncomingAudio(fn func(pkt *protocol.AudioStreamPacket)) {
	m.mu.Lock()
	m.onAudio = fn
	m.mu.Unlock()
}

func (m *Mock) OnConnected(fn func(sessionID string)) {
	m.mu.Lock()
	m.onConnected = fn
	m.mu.Unlock()
}

func (m *Mock) OnDisconnected(fn func(err error)) {
	m.mu.Lock()
	m.onDisconnected = fn
	m.mu.Unlock()
}

// Deliver injects a JSON message as if received from the server.
func (m *Mock) Deliver(raw []byte) {
	m.mu.Lock()
	fn := m.onJSON
	m.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

// DeliverMessage marshals msg and delivers it.
func (m *Mock) DeliverMessage(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	m.Deliver(data)
}

// DeliverAudio injects an audio packet.
func (m *Mock) DeliverAudio(pkt *protocol.AudioStreamPacket) {
	m.mu.Lock()
	fn := m.onAudio
	m.mu.Unlock()
	if fn != nil {
		fn(pkt)
	}
}

// Texts returns every control message sent so far.
func (m *Mock) Texts() []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Message(nil), m.texts...)
}

// Audio returns every audio packet sent so far.
func (m *Mock) Audio() []*protocol.AudioStreamPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*protocol.AudioStreamPacket(nil), m.audio...)
}

// Opens returns how many times Open was called.
func (m *Mock) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

var _ Transport = (*Mock)(nil)
