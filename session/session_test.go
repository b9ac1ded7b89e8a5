package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julez-dev/encore/conn"
	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/save"
	"github.com/julez-dev/encore/twitch"
)

type fakeAccounts struct {
	accounts map[string]save.Account
}

func (f *fakeAccounts) GetAccountBy(id string) (save.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return save.Account{}, save.ErrAccountNotFound
	}

	return account, nil
}

func newTestSession(t *testing.T, settings save.Settings, withTwitch bool) *Session {
	t.Helper()

	options := Options{
		Settings: settings,
		Accounts: &fakeAccounts{accounts: map[string]save.Account{
			"1": {ID: "1", DisplayName: "streamer", AccessToken: "token"},
		}},
		TwitchAccountID: "1",
		TwitchChannel:   "streamer",
		TwitchChannelID: "1",
	}

	if withTwitch {
		api, err := twitch.NewAPI("client-id")
		require.NoError(t, err)
		options.TwitchAPI = api
	}

	s, err := New(zerolog.Nop(), options)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.users.Close()
		s.dedup.Close()
	})

	return s
}

func TestNewSessionWithoutPlatforms(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, save.BuildDefaultSettings(), false)

	assert.Empty(t, s.ConnectionStates())
	assert.Nil(t, s.Stats())
	assert.NotNil(t, s.Alerts())
}

func TestNewSessionSupervisesTwitchConnections(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, save.BuildDefaultSettings(), true)

	states := s.ConnectionStates()
	require.Len(t, states, 2)
	assert.Equal(t, conn.Disconnected, states["twitch-irc"])
	assert.Equal(t, conn.Disconnected, states["twitch-eventsub"])
}

func TestNewSessionBindsConfiguredCommands(t *testing.T) {
	t.Parallel()

	settings := save.BuildDefaultSettings()
	settings.Commands = []save.CommandSettings{
		{Name: "welcome-raiders", Event: "twitch-channel-raided", Template: "Welcome!"},
		{Name: "old-alert", Event: "channel-followed", Disabled: true},
	}

	s := newTestSession(t, settings, false)

	binding, ok := s.runner.Binding(event.TwitchChannelRaided)
	require.True(t, ok)
	assert.Equal(t, "welcome-raiders", binding.Name)
	assert.True(t, binding.Enabled)

	binding, ok = s.runner.Binding(event.ChannelFollowed)
	require.True(t, ok)
	assert.False(t, binding.Enabled)
}

func TestNewSessionRejectsUnknownCommandEvent(t *testing.T) {
	t.Parallel()

	settings := save.BuildDefaultSettings()
	settings.Commands = []save.CommandSettings{
		{Name: "broken", Event: "not-a-kind"},
	}

	_, err := New(zerolog.Nop(), Options{Settings: settings})
	require.ErrorContains(t, err, "unknown event")
}

func TestSessionNotifierAlerts(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, save.BuildDefaultSettings(), false)

	s.DisconnectionOccurred("twitch-irc")
	s.ReconnectionOccurred("twitch-irc")

	history := s.Alerts().History()
	require.Len(t, history, 2)
	assert.Contains(t, history[0].Message, "Lost connection to twitch-irc")
	assert.Equal(t, "red", history[0].Color)
	assert.Contains(t, history[1].Message, "Reconnected to twitch-irc")
	assert.Equal(t, "green", history[1].Color)
}

func TestIRCCredentialsAnonymous(t *testing.T) {
	t.Parallel()

	creds := &ircCredentials{
		accounts: &fakeAccounts{accounts: map[string]save.Account{
			"anonymous": {ID: "anonymous", IsAnonymous: true},
		}},
		accountID: "anonymous",
	}

	got, err := creds.IRCCredentials(t.Context())
	require.NoError(t, err)
	assert.Contains(t, got.Login, "justinfan")
	assert.NotEmpty(t, got.AccessToken)
}

func TestEventSubRequestsScopedToChannel(t *testing.T) {
	t.Parallel()

	requests := eventSubRequests("123")
	require.NotEmpty(t, requests)

	var raidDirections int
	for _, req := range requests {
		if req.Type == "channel.raid" {
			raidDirections++
			continue
		}

		assert.Equal(t, "123", req.Condition["broadcaster_user_id"], "request %s", req.Type)
	}

	// raids are watched in both directions
	assert.Equal(t, 2, raidDirections)
}
