package vars

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tort1k558/Camouflow/pkg/logging"
)

func TestNewProfileFlattensExtraFields(t *testing.T) {
	t.Parallel()

	account := map[string]any{
		"name":  "acct-1",
		"email": "a@b.c",
		"extra_fields": map[string]any{
			"secret_key": "s3cr3t",
			"age":        float64(30),
			"note":       nil,
		},
	}
	p := NewProfile(account, map[string]string{"pool": "x"}, "", logging.Nop())

	assert.Equal(t, "acct-1", p.Get("name"))
	assert.Equal(t, "s3cr3t", p.Get("secret_key"))
	assert.Equal(t, "30", p.Get("age"))
	assert.Equal(t, "", p.Get("note"))
	assert.Equal(t, "x", p.Get("pool"))
	assert.Equal(t, "[]", p.Get("cookies"))
	assert.Equal(t, "", p.Get("timestamp"))
}

func TestProfileMissingKeyIsEmpty(t *testing.T) {
	t.Parallel()

	p := NewProfile(nil, nil, "", logging.Nop())
	assert.Equal(t, "", p.Get("no_such_key"))
}

func TestProfilePersistWritesFullMap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile", "scenario_vars.json")
	p := NewProfile(map[string]any{"name": "acct-1"}, nil, path, logging.Nop())
	p.Set("x", "1")
	require.NoError(t, p.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "1", got["x"])
	assert.Equal(t, "acct-1", got["name"])
}

func TestSharedSetNotifiesWithFullSnapshot(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	s.Set("a", "1")

	var seen []map[string]any
	unsub := s.Subscribe(func(snap map[string]any) {
		seen = append(seen, snap)
	})
	defer unsub()

	s.Set("b", "2")
	require.Len(t, seen, 1)
	assert.Equal(t, "1", seen[0]["a"])
	assert.Equal(t, "2", seen[0]["b"])
}

func TestSharedPanickingSubscriberIsIsolated(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	s.Subscribe(func(map[string]any) { panic("boom") })
	called := false
	s.Subscribe(func(map[string]any) { called = true })

	require.NotPanics(t, func() { s.Set("k", "v") })
	assert.True(t, called)
}

func TestSharedUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	calls := 0
	unsub := s.Subscribe(func(map[string]any) { calls++ })
	s.Set("k", "1")
	unsub()
	s.Set("k", "2")
	assert.Equal(t, 1, calls)
}

func TestSharedPopLine(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	s.Set("pool", "one\ntwo\r\nthree\n\n")

	item, remaining, ok := s.PopLine("pool")
	require.True(t, ok)
	assert.Equal(t, "one", item)
	assert.Equal(t, "two\nthree", remaining)
	assert.Equal(t, "two\nthree", s.GetString("pool"))
}

func TestSharedPopLineFromListValue(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	s.Set("pool", []any{"a;1", "b;2"})

	item, _, ok := s.PopLine("pool")
	require.True(t, ok)
	assert.Equal(t, "a;1", item)

	item, remaining, ok := s.PopLine("pool")
	require.True(t, ok)
	assert.Equal(t, "b;2", item)
	assert.Equal(t, "", remaining)

	_, _, ok = s.PopLine("pool")
	assert.False(t, ok)
}

func TestSharedPopLineConcurrentNoDuplicates(t *testing.T) {
	t.Parallel()

	s := NewShared(logging.Nop())
	s.Set("pool", "a\nb\nc\nd\ne\nf\ng\nh")

	var (
		mu    sync.Mutex
		items []string
		wg    sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if item, _, ok := s.PopLine("pool"); ok {
				mu.Lock()
				items = append(items, item)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, items, 8)
	seen := make(map[string]bool)
	for _, item := range items {
		assert.False(t, seen[item], "item %q popped twice", item)
		seen[item] = true
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "plain", Stringify("plain"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "1", Stringify(float64(1)))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, `["a","b"]`, Stringify([]any{"a", "b"}))
}
