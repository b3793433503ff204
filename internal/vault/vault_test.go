package vault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRetrieve(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	require.NoError(t, v.Store("github_token", "ghp_secret123"))

	value, err := v.Retrieve("github_token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret123", value)
}

func TestRetrieveNotFound(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	_, err = v.Retrieve("missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolve(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	require.NoError(t, v.Store("db_url", "postgres://u:p@host/db"))
	require.NoError(t, v.Store("api_key", "sk_live_abc"))

	resolved, err := v.Resolve("DATABASE_URL={{secrets.db_url}};KEY={{secrets.api_key}}")
	require.NoError(t, err)
	assert.Equal(t, "DATABASE_URL=postgres://u:p@host/db;KEY=sk_live_abc", resolved)
}

func TestResolveUnknownReference(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	_, err = v.Resolve("value={{secrets.nope}}")
	assert.ErrorIs(t, err, ErrUnknownSecret)
}

func TestResolveNoReferences(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	resolved, err := v.Resolve("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", resolved)
}

func TestDestroyRejectsAllCalls(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	require.NoError(t, v.Store("token", "value"))
	v.Destroy()

	err = v.Store("other", "value")
	assert.ErrorIs(t, err, ErrVaultDestroyed)

	_, err = v.Retrieve("token")
	assert.ErrorIs(t, err, ErrVaultDestroyed)

	_, err = v.Resolve("{{secrets.token}}")
	assert.ErrorIs(t, err, ErrVaultDestroyed)
}

func TestDestroyIdempotent(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	require.NoError(t, v.Store("token", "value"))
	v.Destroy()
	v.Destroy()

	status := v.Status()
	assert.True(t, status.IsDestroyed)
	assert.Equal(t, 0, status.SecretCount)
}

func TestStatusNeverExposesValues(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	defer v.Destroy()

	require.NoError(t, v.Store("a", "1"))
	require.NoError(t, v.Store("b", "2"))

	status := v.Status()
	assert.Equal(t, 2, status.SecretCount)
	assert.False(t, status.IsDestroyed)
}

func TestConcurrentAccessDuringDestroy(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	require.NoError(t, v.Store("token", "value"))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Either a decrypted value or ErrVaultDestroyed; never a panic
			// and never a partial read.
			value, err := v.Retrieve("token")
			if err == nil {
				assert.Equal(t, "value", value)
			} else {
				assert.ErrorIs(t, err, ErrVaultDestroyed)
			}
		}()
	}
	v.Destroy()
	wg.Wait()

	_, err = v.Retrieve("token")
	assert.ErrorIs(t, err, ErrVaultDestroyed)
}
