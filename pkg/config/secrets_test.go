package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-openai-test",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2", secrets))
	assert.True(t, SecretsFileExists(dir))

	got, err := DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "correct", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "incorrect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestDecryptCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, AutopilotDirName, secretsFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := DecryptSecretsFile(dir, "whatever")
	require.Error(t, err)
}

func TestSecretsFilePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))

	path := filepath.Join(dir, AutopilotDirName, secretsFileName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Loosened permissions get tightened back on decrypt.
	require.NoError(t, os.Chmod(path, 0o644))
	_, err = DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"MY_TOKEN": "stored"})
	defer SetDecryptedSecrets(nil)
	t.Setenv("MY_TOKEN", "env")

	value, err := GetSecret("MY_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "stored", value)

	SetSecret("OTHER_TOKEN", "added")
	value, err = GetSecret("OTHER_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "added", value)

	_, err = GetSecret("MISSING_TOKEN")
	require.Error(t, err)
}
