package save

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type memKeyring struct {
	values map[string]string
}

func newMemKeyring() *memKeyring {
	return &memKeyring{values: map[string]string{}}
}

func (m *memKeyring) Set(service, user, password string) error {
	m.values[service+"/"+user] = password
	return nil
}

func (m *memKeyring) Get(service, user string) (string, error) {
	v, ok := m.values[service+"/"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}

	return v, nil
}

func (m *memKeyring) Delete(service, user string) error {
	delete(m.values, service+"/"+user)
	return nil
}

func (m *memKeyring) DeleteAll(service string) error {
	m.values = map[string]string{}
	return nil
}

func TestAccountProviderAddAndGet(t *testing.T) {
	t.Parallel()

	provider := NewAccountProvider(newMemKeyring())

	require.NoError(t, provider.Add(Account{ID: "1", Platform: "twitch", DisplayName: "streamer", IsMain: true}))
	require.NoError(t, provider.Add(Account{ID: "2", Platform: "trovo", DisplayName: "streamer"}))

	account, err := provider.GetAccountBy("2")
	require.NoError(t, err)
	assert.Equal(t, "trovo", account.Platform)
	assert.False(t, account.CreatedAt.IsZero())

	main, err := provider.GetMainAccount()
	require.NoError(t, err)
	assert.Equal(t, "1", main.ID)
}

func TestAccountProviderAnonymousAlwaysPresent(t *testing.T) {
	t.Parallel()

	provider := NewAccountProvider(newMemKeyring())

	accounts, err := provider.GetAllAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsAnonymous)
}

func TestAccountProviderDuplicateRejected(t *testing.T) {
	t.Parallel()

	provider := NewAccountProvider(newMemKeyring())

	require.NoError(t, provider.Add(Account{ID: "1"}))
	require.ErrorContains(t, provider.Add(Account{ID: "1"}), "already exists")
}

func TestAccountProviderUpdateTokens(t *testing.T) {
	t.Parallel()

	provider := NewAccountProvider(newMemKeyring())

	require.NoError(t, provider.Add(Account{ID: "1", AccessToken: "old", RefreshToken: "old-refresh"}))
	require.NoError(t, provider.UpdateTokensFor("1", "new", "new-refresh"))

	account, err := provider.GetAccountBy("1")
	require.NoError(t, err)
	assert.Equal(t, "new", account.AccessToken)
	assert.Equal(t, "new-refresh", account.RefreshToken)

	require.ErrorIs(t, provider.UpdateTokensFor("missing", "a", "b"), ErrAccountNotFound)
}

func TestAccountProviderRemovePromotesNewMain(t *testing.T) {
	t.Parallel()

	provider := NewAccountProvider(newMemKeyring())

	require.NoError(t, provider.Add(Account{ID: "1", IsMain: true}))
	require.NoError(t, provider.Add(Account{ID: "2"}))

	require.NoError(t, provider.Remove("1"))

	main, err := provider.GetMainAccount()
	require.NoError(t, err)
	assert.Equal(t, "2", main.ID)
}
