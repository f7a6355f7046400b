// Package secrets copies deployment secrets such as FUNNEL_STATE_SECRET,
// REVIEW_API_TOKEN and DB_PASSWORD from a Vault KV mount into the process
// environment, so config.Load sees them like any other variable.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrIncomplete is returned when Vault is enabled without an address, token or path.
var ErrIncomplete = errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")

type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	// Keys restricts which secrets are applied; empty applies all of them.
	Keys      []string
	Overwrite bool
}

// VaultResult reports what was applied. It names keys, never values.
type VaultResult struct {
	Enabled bool
	Path    string
	Applied []string
	Skipped []string
}

func LoadVaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     "secret",
		Path:      os.Getenv("VAULT_PATH"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if mount := os.Getenv("VAULT_MOUNT"); mount != "" {
		cfg.Mount = mount
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil {
		cfg.KVVersion = v
	}
	if ms, err := strconv.Atoi(os.Getenv("VAULT_TIMEOUT_MS")); err == nil {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	for _, key := range strings.Split(os.Getenv("VAULT_KEYS"), ",") {
		if key = envName(key); key != "" {
			cfg.Keys = append(cfg.Keys, key)
		}
	}
	return cfg
}

// ApplyVaultSecrets sets one environment variable per secret at cfg.Path.
// Variables already set win unless cfg.Overwrite is true.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return result, ErrIncomplete
	}

	data, err := fetchSecrets(ctx, cfg)
	if err != nil {
		return result, fmt.Errorf("vault %s: %w", cfg.Path, err)
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		name := envName(key)
		if name == "" || (len(cfg.Keys) > 0 && !slices.Contains(cfg.Keys, name)) {
			continue
		}
		if !cfg.Overwrite && os.Getenv(name) != "" {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		if err := os.Setenv(name, stringify(data[key])); err != nil {
			return result, fmt.Errorf("set %s: %w", name, err)
		}
		result.Applied = append(result.Applied, name)
	}
	return result, nil
}

// kvResponse covers both engine versions: v1 holds secrets in data, v2 in data.data.
type kvResponse struct {
	Data json.RawMessage `json:"data"`
}

type kvV2Data struct {
	Data map[string]any `json:"data"`
}

func fetchSecrets(ctx context.Context, cfg VaultConfig) (map[string]any, error) {
	endpoint, err := secretURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := (&http.Client{Timeout: cfg.Timeout}).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body kvResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Data) == 0 || string(body.Data) == "null" {
		return nil, fmt.Errorf("no data in KV v%d response", cfg.KVVersion)
	}

	if cfg.KVVersion == 1 {
		var secrets map[string]any
		if err := json.Unmarshal(body.Data, &secrets); err != nil {
			return nil, fmt.Errorf("decode KV v1 data: %w", err)
		}
		return secrets, nil
	}
	var v2 kvV2Data
	if err := json.Unmarshal(body.Data, &v2); err != nil {
		return nil, fmt.Errorf("decode KV v2 data: %w", err)
	}
	if v2.Data == nil {
		return nil, errors.New("no data in KV v2 response")
	}
	return v2.Data, nil
}

func secretURL(addr, mount, path string, kvVersion int) (string, error) {
	addr = strings.TrimRight(addr, "/")
	mount = strings.Trim(mount, "/")
	path = strings.TrimLeft(path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount and path must be set")
	}
	if kvVersion == 1 {
		return addr + "/v1/" + mount + "/" + path, nil
	}
	return addr + "/v1/" + mount + "/data/" + path, nil
}

// envName maps a secret key such as "funnel-state-secret" to FUNNEL_STATE_SECRET.
func envName(key string) string {
	key = strings.TrimSpace(key)
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
