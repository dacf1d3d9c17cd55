package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tort1k558/Camouflow/pkg/logging"
)

func scenarioStore(t *testing.T) *ScenarioStore {
	t.Helper()
	s, err := NewScenarioStore(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	return s
}

func writeScenario(t *testing.T, dir, file, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644))
}

func TestScenarioStoreLoadByFileName(t *testing.T) {
	s := scenarioStore(t)
	writeScenario(t, s.Dir(), "warmup.json", `{"name": "warmup", "steps": [{"action": "start"}]}`)

	sc, path, err := s.Load("warmup")
	require.NoError(t, err)
	assert.Equal(t, "warmup", sc.Name)
	assert.Equal(t, filepath.Join(s.Dir(), "warmup.json"), path)
}

func TestScenarioStoreFallsBackToEmbeddedName(t *testing.T) {
	s := scenarioStore(t)
	writeScenario(t, s.Dir(), "renamed-on-disk.json", `{"name": "My Scenario", "steps": [{"action": "start"}]}`)

	sc, path, err := s.Load("My Scenario")
	require.NoError(t, err)
	assert.Equal(t, "My Scenario", sc.Name)
	assert.Equal(t, filepath.Join(s.Dir(), "renamed-on-disk.json"), path)
}

func TestScenarioStoreSanitizesNames(t *testing.T) {
	s := scenarioStore(t)
	assert.Equal(t, filepath.Join(s.Dir(), "a_b_c.json"), s.Path("a b/c"))
}

func TestScenarioStoreListSkipsBrokenFiles(t *testing.T) {
	s := scenarioStore(t)
	writeScenario(t, s.Dir(), "b.json", `{"name": "beta", "steps": [{"action": "start"}]}`)
	writeScenario(t, s.Dir(), "a.json", `{"name": "alpha", "description": "first", "steps": [{"action": "start"}, {"action": "end"}]}`)
	writeScenario(t, s.Dir(), "broken.json", `{"steps": [{"action": "nope"}]}`)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, 2, list[0].Steps)
	assert.Equal(t, "beta", list[1].Name)
}

func TestScenarioStoreSaveRoundTripsUnknownFields(t *testing.T) {
	s := scenarioStore(t)
	writeScenario(t, s.Dir(), "x.json", `{"name": "x", "steps": [{"action": "goto", "url": "https://example.com", "custom_key": 7}]}`)

	sc, _, err := s.Load("x")
	require.NoError(t, err)
	require.NoError(t, s.Save(sc))

	data, err := os.ReadFile(s.Path("x"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"custom_key"`)
}

func TestScenarioStoreDeleteMissingIsNoop(t *testing.T) {
	s := scenarioStore(t)
	assert.NoError(t, s.Delete("ghost"))
}

func accountStore(t *testing.T) *AccountStore {
	t.Helper()
	a, err := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"), logging.Nop())
	require.NoError(t, err)
	return a
}

func TestAccountStoreAddNormalizes(t *testing.T) {
	a := accountStore(t)
	acc, err := a.Add(map[string]any{
		"email":      "u@x.io",
		"proxy_host": " 1.2.3.4 ",
		"proxy_port": "1080",
		"custom":     "kept",
	})
	require.NoError(t, err)
	assert.Equal(t, "profile1", acc["name"])
	assert.Equal(t, "1.2.3.4", acc["proxy_host"])
	assert.Equal(t, 1080, acc["proxy_port"])
	assert.Equal(t, "kept", acc["custom"])

	second, err := a.Add(map[string]any{"email": "v@x.io"})
	require.NoError(t, err)
	assert.Equal(t, "profile2", second["name"])
}

func TestAccountStoreRejectsDuplicateNames(t *testing.T) {
	a := accountStore(t)
	_, err := a.Add(map[string]any{"name": "Main"})
	require.NoError(t, err)
	_, err = a.Add(map[string]any{"name": "main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestAccountStoreRejectsBadProxyPort(t *testing.T) {
	a := accountStore(t)
	_, err := a.Add(map[string]any{"name": "x", "proxy_host": "1.2.3.4", "proxy_port": "99999"})
	require.Error(t, err)
}

func TestAccountStoreUpdateAndStage(t *testing.T) {
	a := accountStore(t)
	_, err := a.Add(map[string]any{"name": "acct-1", "email": "u@x.io"})
	require.NoError(t, err)

	require.NoError(t, a.UpdateAccount("acct-1", map[string]string{"token": "t-1"}))
	require.NoError(t, a.UpdateStage("acct-1", "warmed"))

	all, err := a.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t-1", all[0]["token"])
	assert.Equal(t, "warmed", all[0]["stage"])

	assert.Error(t, a.UpdateAccount("ghost", map[string]string{"x": "y"}))
}

func TestParseAccountLine(t *testing.T) {
	acc, err := ParseAccountLine("u@x.io;pw;sk;extra;https://2fa", DefaultAccountTemplate)
	require.NoError(t, err)
	assert.Equal(t, "u@x.io", acc["email"])
	assert.Equal(t, "pw", acc["password"])
	assert.Equal(t, "https://2fa", acc["twofa_url"])
}

func TestParseAccountLineCustomDelimiter(t *testing.T) {
	acc, err := ParseAccountLine("u@x.io|pw", "{email}|{password}")
	require.NoError(t, err)
	assert.Equal(t, "pw", acc["password"])
}

func TestParseAccountLineFieldCountMismatch(t *testing.T) {
	_, err := ParseAccountLine("only-one-field", "{email};{password}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 fields")
}

func TestParseProxyLine(t *testing.T) {
	p, err := ParseProxyLine("socks5://1.2.3.4:1080:user:pw")
	require.NoError(t, err)
	assert.Equal(t, Proxy{Host: "1.2.3.4", Port: 1080, User: "user", Password: "pw"}, p)

	acc := map[string]any{"name": "a"}
	p.Apply(acc)
	assert.Equal(t, "1.2.3.4", acc["proxy_host"])
	assert.Equal(t, 1080, acc["proxy_port"])

	_, err = ParseProxyLine("1.2.3.4:1080")
	require.Error(t, err)
	_, err = ParseProxyLine("1.2.3.4:eighty:u:p")
	require.Error(t, err)
}

func settingsStore(t *testing.T) *SettingsStore {
	t.Helper()
	s, err := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), logging.Nop())
	require.NoError(t, err)
	return s
}

func TestSettingsStoreGetSet(t *testing.T) {
	s := settingsStore(t)
	got, err := s.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, s.Set("theme", "dark"))
	got, err = s.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
}

func TestSharedVariablesDecodeTaggedEntries(t *testing.T) {
	s := settingsStore(t)
	blob := `{"greeting": {"type": "string", "value": "hi"}, "codes": {"type": "list", "value": ["a", "b"]}, "bare": "plain"}`
	require.NoError(t, s.Set("shared_variables", blob))

	shared, err := s.SharedVariables()
	require.NoError(t, err)
	assert.Equal(t, "hi", shared["greeting"])
	assert.Equal(t, []any{"a", "b"}, shared["codes"])
	assert.Equal(t, "plain", shared["bare"])
}

func TestPersistSharedVarKeepsListType(t *testing.T) {
	s := settingsStore(t)
	require.NoError(t, s.Set("shared_variables", `{"codes": {"type": "list", "value": ["a", "b", "c"]}}`))

	require.NoError(t, s.PersistSharedVar("codes", "b\nc"))

	raw, err := s.Get("shared_variables")
	require.NoError(t, err)
	var entries map[string]struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	assert.Equal(t, "list", entries["codes"].Type)
	assert.Equal(t, []any{"b", "c"}, entries["codes"].Value)
}

func TestPersistSharedVarDefaultsToString(t *testing.T) {
	s := settingsStore(t)
	require.NoError(t, s.PersistSharedVar("note", "line1\r\nline2"))

	shared, err := s.SharedVariables()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", shared["note"])
}
