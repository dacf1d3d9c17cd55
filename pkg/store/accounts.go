package store

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Tort1k558/Camouflow/pkg/vars"
)

var profileNumber = regexp.MustCompile(`profile[_-]?(\d+)$`)

// AccountStore keeps the full account list in one JSON file. Accounts are
// open maps: the store normalizes the handful of fields the engine relies on
// and preserves everything else untouched.
type AccountStore struct {
	path     string
	log      zerolog.Logger
	validate *validator.Validate
}

// NewAccountStore creates the store, seeding an empty list when the file
// does not exist yet.
func NewAccountStore(path string, log zerolog.Logger) (*AccountStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := atomicWrite(path, []byte("[]")); err != nil {
			return nil, fmt.Errorf("seed accounts file: %w", err)
		}
	}
	return &AccountStore{path: path, log: log, validate: validator.New()}, nil
}

// proxyFields is the validated view of an account's proxy configuration.
type proxyFields struct {
	Host     string `validate:"omitempty,hostname|ip"`
	Port     int    `validate:"omitempty,min=1,max=65535"`
	User     string
	Password string
}

func (a *AccountStore) load() ([]map[string]any, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return out, nil
}

func (a *AccountStore) save(accounts []map[string]any) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	return atomicWrite(a.path, data)
}

// normalize ensures the mandatory fields exist and carry the expected
// shapes; extra keys pass through unchanged.
func (a *AccountStore) normalize(acc map[string]any, existing []map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(acc))
	for k, v := range acc {
		out[k] = v
	}
	name := strings.TrimSpace(vars.Stringify(out["name"]))
	if name == "" {
		name = nextProfileName(existing)
	}
	out["name"] = name

	proxy := proxyFields{
		Host:     strings.TrimSpace(vars.Stringify(out["proxy_host"])),
		User:     strings.TrimSpace(vars.Stringify(out["proxy_user"])),
		Password: strings.TrimSpace(vars.Stringify(out["proxy_password"])),
	}
	if raw := strings.TrimSpace(vars.Stringify(out["proxy_port"])); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("account %s: proxy port %q is not a number", name, raw)
		}
		proxy.Port = port
	}
	if err := a.validate.Struct(proxy); err != nil {
		return nil, fmt.Errorf("account %s: invalid proxy: %w", name, err)
	}
	out["proxy_host"] = proxy.Host
	out["proxy_user"] = proxy.User
	out["proxy_password"] = proxy.Password
	if proxy.Port > 0 {
		out["proxy_port"] = proxy.Port
	} else {
		delete(out, "proxy_port")
	}
	out["stage"] = vars.Stringify(out["stage"])
	return out, nil
}

// nextProfileName picks profileN past the highest existing number.
func nextProfileName(existing []map[string]any) string {
	max := 0
	for _, acc := range existing {
		name := strings.ToLower(strings.TrimSpace(vars.Stringify(acc["name"])))
		if name == "" {
			name = strings.ToLower(strings.TrimSpace(vars.Stringify(acc["email"])))
		}
		if m := profileNumber.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return "profile" + strconv.Itoa(max+1)
}

// All returns every account, normalized. Records that fail normalization are
// logged and skipped.
func (a *AccountStore) All() ([]map[string]any, error) {
	raw, err := a.load()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for _, acc := range raw {
		normalized, err := a.normalize(acc, raw)
		if err != nil {
			a.log.Warn().Err(err).Msg("skipping malformed account")
			continue
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Add appends a new account. Names are unique case-insensitively.
func (a *AccountStore) Add(acc map[string]any) (map[string]any, error) {
	accounts, err := a.load()
	if err != nil {
		return nil, err
	}
	normalized, err := a.normalize(acc, accounts)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(vars.Stringify(normalized["name"]))
	for _, existing := range accounts {
		if strings.ToLower(vars.Stringify(existing["name"])) == name {
			return nil, fmt.Errorf("duplicate account %s", normalized["name"])
		}
	}
	accounts = append(accounts, normalized)
	if err := a.save(accounts); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Delete removes the named account; unknown names are a no-op.
func (a *AccountStore) Delete(name string) error {
	accounts, err := a.load()
	if err != nil {
		return err
	}
	key := strings.ToLower(strings.TrimSpace(name))
	kept := accounts[:0]
	for _, acc := range accounts {
		if strings.ToLower(vars.Stringify(acc["name"])) != key {
			kept = append(kept, acc)
		}
	}
	return a.save(kept)
}

// UpdateAccount merges fields into the named account and persists. Part of
// the executor's account writer contract.
func (a *AccountStore) UpdateAccount(name string, fields map[string]string) error {
	accounts, err := a.load()
	if err != nil {
		return err
	}
	key := strings.ToLower(strings.TrimSpace(name))
	for i, acc := range accounts {
		if strings.ToLower(vars.Stringify(acc["name"])) != key {
			continue
		}
		for k, v := range fields {
			acc[k] = v
		}
		normalized, err := a.normalize(acc, accounts)
		if err != nil {
			return err
		}
		accounts[i] = normalized
		return a.save(accounts)
	}
	return fmt.Errorf("account %s not found", name)
}

// UpdateStage sets the named account's stage and persists.
func (a *AccountStore) UpdateStage(name, stage string) error {
	return a.UpdateAccount(name, map[string]string{"stage": stage})
}
