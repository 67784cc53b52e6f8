package display

import "sync"

// Event is one recorded display update.
type Event struct {
	Kind string // status, chat, emotion
	Role Role
	Text string
}

// Recorder is a Display that keeps every update, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) SetStatus(status string) {
	r.add(Event{Kind: "status", Text: status})
}

func (r *Recorder) SetChatMessage(role Role, text string) {
	r.add(Event{Kind: "chat", Role: role, Text: text})
}

func (r *Recorder) SetEmotion(name string) {
	r.add(Event{Kind: "emotion", Text: name})
}

// Events returns a copy of the recorded updates.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// LastStatus returns the most recent status, or "".
func (r *Recorder) LastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == "status" {
			return r.events[i].Text
		}
	}
	return ""
}
