package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultServer(t *testing.T, wantPath, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestApplyVaultSecrets_KV2(t *testing.T) {
	server := vaultServer(t, "/v1/secret/data/review-funnel",
		`{"data":{"data":{"funnel-state-secret":"from-vault","REVIEW_API_TOKEN":"tok","FUNNEL_DEBOUNCE":1500}}}`)

	t.Setenv("FUNNEL_STATE_SECRET", "")
	t.Setenv("REVIEW_API_TOKEN", "already-set")
	t.Setenv("FUNNEL_DEBOUNCE", "")

	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL,
		Token:     "root",
		Mount:     "secret",
		Path:      "review-funnel",
		KVVersion: 2,
		Timeout:   time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"FUNNEL_DEBOUNCE", "FUNNEL_STATE_SECRET"}, result.Applied)
	assert.Equal(t, []string{"REVIEW_API_TOKEN"}, result.Skipped)
	assert.Equal(t, "from-vault", os.Getenv("FUNNEL_STATE_SECRET"))
	assert.Equal(t, "already-set", os.Getenv("REVIEW_API_TOKEN"))
	assert.Equal(t, "1500", os.Getenv("FUNNEL_DEBOUNCE"))
}

func TestApplyVaultSecrets_KV1WithKeyFilter(t *testing.T) {
	server := vaultServer(t, "/v1/kv/review-funnel",
		`{"data":{"DB_PASSWORD":"pw","REDIS_PASSWORD":"ignored"}}`)

	t.Setenv("DB_PASSWORD", "")
	t.Setenv("REDIS_PASSWORD", "")

	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL + "/",
		Token:     "root",
		Mount:     "/kv/",
		Path:      "review-funnel",
		KVVersion: 1,
		Timeout:   time.Second,
		Keys:      []string{"DB_PASSWORD"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"DB_PASSWORD"}, result.Applied)
	assert.Equal(t, "pw", os.Getenv("DB_PASSWORD"))
	assert.Empty(t, os.Getenv("REDIS_PASSWORD"))
}

func TestApplyVaultSecrets_Overwrite(t *testing.T) {
	server := vaultServer(t, "/v1/secret/data/review-funnel",
		`{"data":{"data":{"FUNNEL_STATE_SECRET":"rotated"}}}`)
	t.Setenv("FUNNEL_STATE_SECRET", "stale")

	_, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "root", Mount: "secret",
		Path: "review-funnel", KVVersion: 2, Timeout: time.Second, Overwrite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "rotated", os.Getenv("FUNNEL_STATE_SECRET"))
}

func TestApplyVaultSecrets_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "bad", Mount: "secret",
		Path: "review-funnel", KVVersion: 2, Timeout: time.Second,
	})
	assert.ErrorContains(t, err, "403")
}

func TestApplyVaultSecrets_Disabled(t *testing.T) {
	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{Enabled: false})
	assert.NoError(t, err)
	assert.False(t, result.Enabled)
}

func TestApplyVaultSecrets_Incomplete(t *testing.T) {
	_, err := ApplyVaultSecrets(context.Background(), VaultConfig{Enabled: true, Addr: "http://vault"})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestLoadVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "TRUE")
	t.Setenv("VAULT_KEYS", "funnel-state-secret, REVIEW_API_TOKEN,")
	t.Setenv("VAULT_KV_VERSION", "1")
	t.Setenv("VAULT_TIMEOUT_MS", "250")

	cfg := LoadVaultConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"FUNNEL_STATE_SECRET", "REVIEW_API_TOKEN"}, cfg.Keys)
	assert.Equal(t, 1, cfg.KVVersion)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "secret", cfg.Mount)
}
