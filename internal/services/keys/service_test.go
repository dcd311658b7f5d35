package keys

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmlab/llmlab/internal/crypto"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/testutil"
)

func newService(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()

	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 1001)
	enc, err := crypto.NewEncryptor("test-encryption-key")
	require.NoError(t, err)
	return NewService(db, enc), user.ID
}

func TestGenerateProxyKey(t *testing.T) {
	key, err := GenerateProxyKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "llmlab_pk_"))
	assert.Len(t, key, len("llmlab_pk_")+32)

	other, err := GenerateProxyKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestStoreAndResolve(t *testing.T) {
	svc, userID := newService(t)

	key, err := svc.Store(userID, models.ProviderOpenAI, "sk-real-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.ProxyKey, "llmlab_pk_"))
	assert.NotEqual(t, "sk-real-secret", key.EncryptedKey)

	resolved, secret, err := svc.Resolve(key.ProxyKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-real-secret", secret)
	assert.Equal(t, key.ID, resolved.ID)
	assert.Equal(t, models.ProviderOpenAI, resolved.Provider)
}

func TestStoreRejectsInvalidProvider(t *testing.T) {
	svc, userID := newService(t)

	_, err := svc.Store(userID, "azure", "sk-x")
	assert.ErrorIs(t, err, ErrInvalidProvider)

	_, err = svc.Store(userID, models.ProviderOpenAI, "")
	assert.Error(t, err)
}

func TestStoreDeactivatesPreviousKey(t *testing.T) {
	svc, userID := newService(t)

	first, err := svc.Store(userID, models.ProviderOpenAI, "sk-old")
	require.NoError(t, err)
	second, err := svc.Store(userID, models.ProviderOpenAI, "sk-new")
	require.NoError(t, err)

	_, _, err = svc.Resolve(first.ProxyKey)
	assert.ErrorIs(t, err, ErrKeyNotFound, "superseded key must stop resolving")

	_, secret, err := svc.Resolve(second.ProxyKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", secret)
}

func TestStoreKeepsOtherProvidersActive(t *testing.T) {
	svc, userID := newService(t)

	openai, err := svc.Store(userID, models.ProviderOpenAI, "sk-openai")
	require.NoError(t, err)
	_, err = svc.Store(userID, models.ProviderAnthropic, "sk-ant")
	require.NoError(t, err)

	_, _, err = svc.Resolve(openai.ProxyKey)
	assert.NoError(t, err)
}

func TestResolveUnknownKey(t *testing.T) {
	svc, _ := newService(t)
	_, _, err := svc.Resolve("llmlab_pk_does_not_exist")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDeactivate(t *testing.T) {
	svc, userID := newService(t)

	key, err := svc.Store(userID, models.ProviderGoogle, "AIza-x")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(userID, key.ID))
	_, _, err = svc.Resolve(key.ProxyKey)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.ErrorIs(t, svc.Deactivate(userID, uuid.New()), ErrKeyNotFound)
}

func TestDeactivateOtherUsersKey(t *testing.T) {
	svc, userID := newService(t)

	key, err := svc.Store(userID, models.ProviderOpenAI, "sk-x")
	require.NoError(t, err)

	err = svc.Deactivate(uuid.New(), key.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound, "tenants cannot touch each other's keys")
}

func TestTouchLastUsed(t *testing.T) {
	svc, userID := newService(t)

	key, err := svc.Store(userID, models.ProviderOpenAI, "sk-x")
	require.NoError(t, err)
	assert.Nil(t, key.LastUsedAt)

	require.NoError(t, svc.TouchLastUsed(key.ID))

	list, err := svc.List(userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].LastUsedAt)
}
