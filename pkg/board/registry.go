package board

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/audioio"
)

// Options is what a plugin receives when its board is opened.
type Options struct {
	// Sink is the speaker; boards with software volume drive it directly.
	Sink   audioio.Sink
	Logger *slog.Logger
}

// Factory builds a board.
type Factory func(opts Options) (Board, error)

var (
	pluginsMu sync.RWMutex
	plugins   = make(map[string]Factory)
)

// Register makes a board available by name. It panics if the name is taken
// or f is nil, so it is meant to be called from init.
func Register(name string, f Factory) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()
	if f == nil {
		panic("board: Register factory is nil")
	}
	if _, dup := plugins[name]; dup {
		panic("board: Register called twice for " + name)
	}
	plugins[name] = f
}

// Open builds the board registered under name.
func Open(name string, opts Options) (Board, error) {
	pluginsMu.RLock()
	f, ok := plugins[name]
	pluginsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBoard, name, Names())
	}
	return f(opts)
}

// Names lists the registered boards, sorted.
func Names() []string {
	pluginsMu.RLock()
	defer pluginsMu.RUnlock()
	out := make([]string, 0, len(plugins))
	for name := range plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
