package state

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

// EnterFunc runs when a state is entered, including re-entry of the current
// state. It must be idempotent and must not call SetState.
type EnterFunc func(prev DeviceState)

// Listener observes completed transitions. It must not call SetState.
type Listener func(from, to DeviceState)

// Machine is the single owner of the device state.
type Machine struct {
	mu      sync.Mutex // held for the whole transition
	current atomic.Int32

	hooks     map[DeviceState][]EnterFunc
	listeners []Listener
	lastErr   atomic.Pointer[error]

	logger *slog.Logger
}

// NewMachine creates a machine in the Unknown state.
func NewMachine(logger *slog.Logger) *Machine {
	return &Machine{
		hooks:  make(map[DeviceState][]EnterFunc),
		logger: log.Or(logger, "state"),
	}
}

// CurrentState returns the active state. Safe to call from hooks.
func (m *Machine) CurrentState() DeviceState {
	return DeviceState(m.current.Load())
}

// Is reports whether the machine is in s.
func (m *Machine) Is(s DeviceState) bool {
	return m.CurrentState() == s
}

// OnEnter registers a hook for entering s. Hooks run in registration order.
func (m *Machine) OnEnter(s DeviceState, fn EnterFunc) {
	m.mu.Lock()
	m.hooks[s] = append(m.hooks[s], fn)
	m.mu.Unlock()
}

// Subscribe registers a listener for every completed transition.
func (m *Machine) Subscribe(fn Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetState requests a transition. Rejected transitions return a
// *TransitionError and leave the state unchanged. Requesting the current
// state re-runs its entry hooks.
func (m *Machine) SetState(to DeviceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.CurrentState()
	if !Allowed(from, to) {
		m.logger.Debug("transition rejected", "from", from, "to", to)
		return &TransitionError{From: from, To: to}
	}
	m.enter(from, to)
	return nil
}

// Fail records err and moves to FatalError.
func (m *Machine) Fail(err error) {
	if err != nil {
		m.lastErr.Store(&err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enter(m.CurrentState(), FatalError)
}

// LastError returns the error passed to the most recent Fail.
func (m *Machine) LastError() error {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Restart leaves any state, including FatalError, for Starting.
func (m *Machine) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr.Store(nil)
	m.enter(m.CurrentState(), Starting)
}

func (m *Machine) enter(from, to DeviceState) {
	m.current.Store(int32(to))
	if from != to {
		m.logger.Info("state changed", "from", from, "to", to)
	}
	for _, fn := range m.hooks[to] {
		fn(from)
	}
	for _, fn := range m.listeners {
		fn(from, to)
	}
}
