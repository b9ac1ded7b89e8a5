// Package session assembles one running companion session: platform
// connections feeding classifiers, the dispatcher with its command
// runner, alerting and statistics.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julez-dev/encore/alert"
	"github.com/julez-dev/encore/command"
	"github.com/julez-dev/encore/conn"
	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/save"
	"github.com/julez-dev/encore/stats"
	"github.com/julez-dev/encore/trovo"
	"github.com/julez-dev/encore/twitch"
	"github.com/julez-dev/encore/twitch/eventsub"
	"github.com/julez-dev/encore/twitch/twitchirc"
	"github.com/julez-dev/encore/user"
)

const commandWorkers = 4

// AccountStore is the slice of the account storage the session needs to
// authenticate its connections.
type AccountStore interface {
	GetAccountBy(id string) (save.Account, error)
}

// Options carries everything a session needs. A nil TwitchAPI or
// TrovoAPI disables that platform entirely.
type Options struct {
	Settings save.Settings
	Accounts AccountStore

	TwitchAPI       *twitch.API
	TwitchAccountID string
	TwitchChannel   string
	TwitchChannelID string

	TrovoAPI *trovo.API

	// StatsDB and StatsReadDB back the event statistics; both nil
	// disables recording.
	StatsDB     stats.DB
	StatsReadDB stats.DB
}

// Session owns the full event pipeline for one channel. Create it with
// New, then drive it with Run.
type Session struct {
	logger  zerolog.Logger
	options Options

	users      *user.Directory
	dedup      *event.Deduplicator
	dispatcher *event.Dispatcher
	runner     *command.Runner
	alerts     *alert.Hub
	recorder   *stats.BatchedRecorder

	twitchClassifier *twitch.Classifier
	trovoClassifier  *trovo.Classifier

	supervisors map[string]*conn.Supervisor

	ctx chan context.Context
}

func New(logger zerolog.Logger, options Options) (*Session, error) {
	owner := &user.User{
		ID:          uuid.New(),
		Platform:    user.PlatformTwitch,
		PlatformID:  options.TwitchChannelID,
		Login:       options.TwitchChannel,
		DisplayName: options.TwitchChannel,
	}

	s := &Session{
		logger:      logger.With().Str("component", "session").Logger(),
		options:     options,
		users:       user.NewDirectory(logger, owner),
		dedup:       event.NewDeduplicator(),
		runner:      command.NewRunner(logger, commandWorkers),
		alerts:      alert.NewHub(logger),
		supervisors: map[string]*conn.Supervisor{},
		ctx:         make(chan context.Context, 1),
	}

	var statistics event.Statistics
	if options.StatsDB != nil && options.Settings.Statistics.StoreEvents {
		s.recorder = stats.NewBatchedRecorder(logger, options.StatsDB, options.StatsReadDB)
		statistics = s.recorder
	}

	s.dispatcher = event.NewDispatcher(logger, s.dedup, s.users, s.runner, statistics)

	if err := s.bindCommands(); err != nil {
		return nil, err
	}

	threshold := options.Settings.Gifts.MassGiftThreshold

	if options.TwitchAPI != nil {
		s.twitchClassifier = twitch.NewClassifier(logger, s.dispatcher, s.users, s.dedup, s.alerts, options.TwitchAPI, options.TwitchChannelID, threshold)

		irc := twitchirc.NewConn(logger, "twitch-irc", options.TwitchChannel, &ircCredentials{accounts: options.Accounts, accountID: options.TwitchAccountID}, func(msg twitchirc.IRCer) {
			s.twitchClassifier.HandleIRC(s.context(), msg)
		})
		s.supervisors["twitch-irc"] = conn.NewSupervisor(logger, irc, &conn.FixedBackoff{}, s)

		es := eventsub.NewConn(logger, "twitch-eventsub", nil, options.TwitchAPI, eventSubRequests(options.TwitchChannelID), func(msg eventsub.Message[eventsub.NotificationPayload]) {
			s.twitchClassifier.HandleEventSub(s.context(), msg)
		})
		s.supervisors["twitch-eventsub"] = conn.NewSupervisor(logger, es, &conn.ExponentialBackoff{}, s)
	}

	if options.TrovoAPI != nil {
		s.trovoClassifier = trovo.NewClassifier(logger, s.dispatcher, s.users, s.dedup, s.alerts, options.TrovoAPI, threshold)

		chat := trovo.NewChatConn(logger, "trovo-chat", options.TrovoAPI, func(msg trovo.ChatMessage) {
			s.trovoClassifier.HandleChat(s.context(), msg)
		})
		s.supervisors["trovo-chat"] = conn.NewSupervisor(logger, chat, &conn.FixedBackoff{}, s)
	}

	return s, nil
}

// bindCommands turns the configured commands into runner bindings. The
// only supported action is a chat announcement on the Twitch channel.
func (s *Session) bindCommands() error {
	for _, c := range s.options.Settings.Commands {
		kind, ok := event.ParseKind(c.Event)
		if !ok {
			return fmt.Errorf("command %q binds unknown event %q", c.Name, c.Event)
		}

		template := c.Template

		s.runner.Bind(&command.Binding{
			Name:    c.Name,
			Kind:    kind,
			Enabled: !c.Disabled,
			Action: func(ctx context.Context, params event.CommandParameters) error {
				if s.options.TwitchAPI == nil {
					return nil
				}

				return s.options.TwitchAPI.SendChatAnnouncement(ctx, s.options.TwitchChannelID, s.options.TwitchChannelID, twitch.CreateChatAnnouncementRequest{
					Message: ExpandTemplate(template, params),
					Color:   twitch.ChatAnnouncementColorPrimary,
				})
			},
		})
	}

	return nil
}

// Run drives every component until ctx is canceled. The launch event
// fires once everything is started, the exit event right before Run
// returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.users.Close()
	defer s.dedup.Close()

	select {
	case s.ctx <- ctx:
	default:
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.runner.Run(ctx)
	})

	if s.recorder != nil {
		if err := s.recorder.PrepareDatabase(); err != nil {
			return fmt.Errorf("failed preparing statistics database: %w", err)
		}

		group.Go(func() error {
			return s.recorder.Run(ctx)
		})
	}

	if s.twitchClassifier != nil {
		group.Go(func() error {
			return s.twitchClassifier.Gifts().Run(ctx)
		})
	}

	if s.trovoClassifier != nil {
		group.Go(func() error {
			return s.trovoClassifier.Gifts().Run(ctx)
		})
	}

	for _, supervisor := range s.supervisors {
		group.Go(func() error {
			return supervisor.Run(ctx)
		})
	}

	s.dispatcher.Dispatch(ctx, event.ApplicationLaunch, event.NewParameters(s.users.Owner(), user.PlatformNone))

	err := group.Wait()

	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), conn.DefaultDelay)
	defer cancel()
	s.dispatcher.Dispatch(exitCtx, event.ApplicationExit, event.NewParameters(s.users.Owner(), user.PlatformNone))

	return err
}

// context returns the Run context, falling back to the background
// context before Run has started.
func (s *Session) context() context.Context {
	select {
	case ctx := <-s.ctx:
		s.ctx <- ctx
		return ctx
	default:
		return context.Background()
	}
}

// ConnectionStates reports the state of every supervised connection,
// keyed by transport name.
func (s *Session) ConnectionStates() map[string]conn.State {
	states := make(map[string]conn.State, len(s.supervisors))
	for name, supervisor := range s.supervisors {
		states[name] = supervisor.State()
	}

	return states
}

// Alerts exposes the session's alert hub, e.g. for the local server.
func (s *Session) Alerts() *alert.Hub {
	return s.alerts
}

// Stats exposes the statistics recorder, nil when recording is disabled.
func (s *Session) Stats() *stats.BatchedRecorder {
	return s.recorder
}

// DisconnectionOccurred satisfies the supervisor's notifier contract.
func (s *Session) DisconnectionOccurred(transport string) {
	s.alerts.AddAlert(fmt.Sprintf("Lost connection to %s, reconnecting...", transport), "red")
}

func (s *Session) ReconnectionOccurred(transport string) {
	s.alerts.AddAlert(fmt.Sprintf("Reconnected to %s", transport), "green")
}

// ircCredentials hands the stored tokens to the IRC connection per
// attempt. The anonymous account gets a justinfan login, which Twitch
// accepts read-only with any token.
type ircCredentials struct {
	accounts  AccountStore
	accountID string
}

func (c *ircCredentials) IRCCredentials(ctx context.Context) (twitchirc.Credentials, error) {
	account, err := c.accounts.GetAccountBy(c.accountID)
	if err != nil {
		return twitchirc.Credentials{}, err
	}

	if account.IsAnonymous {
		return twitchirc.Credentials{
			Login:       fmt.Sprintf("justinfan%d", rand.IntN(89_999)+10_000),
			AccessToken: "oauth:anything",
		}, nil
	}

	return twitchirc.Credentials{
		Login:       account.DisplayName,
		AccessToken: account.AccessToken,
	}, nil
}

// eventSubRequests lists the subscriptions one session needs. All of
// them are scoped to the broadcaster; moderator-scoped conditions reuse
// the broadcaster since the companion runs as the channel owner.
func eventSubRequests(channelID string) []eventsub.CreateSubscriptionRequest {
	return []eventsub.CreateSubscriptionRequest{
		{Type: "stream.online", Version: "1", Condition: map[string]string{"broadcaster_user_id": channelID}},
		{Type: "stream.offline", Version: "1", Condition: map[string]string{"broadcaster_user_id": channelID}},
		{Type: "channel.update", Version: "2", Condition: map[string]string{"broadcaster_user_id": channelID}},
		{Type: "channel.follow", Version: "2", Condition: map[string]string{"broadcaster_user_id": channelID, "moderator_user_id": channelID}},
		{Type: "channel.raid", Version: "1", Condition: map[string]string{"to_broadcaster_user_id": channelID}},
		{Type: "channel.raid", Version: "1", Condition: map[string]string{"from_broadcaster_user_id": channelID}},
		{Type: "channel.cheer", Version: "1", Condition: map[string]string{"broadcaster_user_id": channelID}},
		{Type: "channel.channel_points_custom_reward_redemption.add", Version: "1", Condition: map[string]string{"broadcaster_user_id": channelID}},
	}
}
