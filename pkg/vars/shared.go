package vars

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Shared is the process-wide variable store. It is constructed once and
// passed by handle to every executor; all mutation goes through one mutex
// so concurrent executions never observe a partial map.
type Shared struct {
	mu     sync.Mutex
	values map[string]any
	subs   []subscriber
	nextID int
	log    zerolog.Logger
}

type subscriber struct {
	id int
	fn func(map[string]any)
}

// NewShared creates an empty shared store.
func NewShared(log zerolog.Logger) *Shared {
	return &Shared{values: make(map[string]any), log: log}
}

// Replace swaps in a whole new map (nil clears) and notifies subscribers.
func (s *Shared) Replace(values map[string]any) {
	s.mu.Lock()
	if values == nil {
		s.values = make(map[string]any)
	} else {
		s.values = values
	}
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)
}

// Get returns the raw value for key, or nil.
func (s *Shared) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// GetString returns the value rendered as a string; list values join with
// newlines so pools read the same whether defined as lists or text blobs.
// Missing key resolves to "".
func (s *Shared) GetString(key string) string {
	return renderShared(s.Get(key))
}

// Set stores a value and synchronously notifies every subscriber with a
// full-map snapshot.
func (s *Shared) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)
}

// All returns a copy of the full map.
func (s *Shared) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, _ := s.snapshotLocked()
	return snap
}

// StringSnapshot renders every entry as a string, for seeding execution-local
// variables.
func (s *Shared) StringSnapshot() map[string]string {
	all := s.All()
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k] = renderShared(v)
	}
	return out
}

// Subscribe registers a change observer and returns an unsubscribe func.
// Observers receive a full-map snapshot on every write; a panicking
// observer is isolated and never blocks the writer or other observers.
func (s *Shared) Subscribe(fn func(map[string]any)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// PopLine removes the first line of a pool-style value (a list or a
// newline-separated string) and writes the remainder back, all under the
// store mutex so concurrent executions never pop the same item. The second
// return is the remaining pool; ok is false when the pool is empty.
func (s *Shared) PopLine(key string) (item string, remaining string, ok bool) {
	s.mu.Lock()
	items := splitPool(s.values[key])
	if len(items) == 0 {
		s.mu.Unlock()
		return "", "", false
	}
	item = items[0]
	remaining = strings.Join(items[1:], "\n")
	s.values[key] = remaining
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)
	return item, remaining, true
}

func (s *Shared) snapshotLocked() (map[string]any, []subscriber) {
	snap := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	return snap, subs
}

func (s *Shared) notify(snap map[string]any, subs []subscriber) {
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Warn().Interface("panic", r).Msg("shared vars subscriber panicked")
				}
			}()
			sub.fn(snap)
		}()
	}
}

// splitPool normalizes a pool value to its non-empty trimmed lines.
func splitPool(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return cleanLines(v)
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			lines = append(lines, Stringify(item))
		}
		return cleanLines(lines)
	case string:
		return cleanLines(strings.Split(strings.ReplaceAll(v, "\r\n", "\n"), "\n"))
	default:
		s := Stringify(v)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{strings.TrimSpace(s)}
	}
}

func cleanLines(in []string) []string {
	out := make([]string, 0, len(in))
	for _, line := range in {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func renderShared(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			lines = append(lines, Stringify(item))
		}
		return strings.Join(lines, "\n")
	default:
		return Stringify(v)
	}
}
