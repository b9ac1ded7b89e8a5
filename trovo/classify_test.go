package trovo

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/user"
)

type dispatchCall struct {
	kind   event.Kind
	params event.CommandParameters
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) Dispatch(_ context.Context, kind event.Kind, params event.CommandParameters) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, dispatchCall{kind: kind, params: params})

	return true
}

func (f *fakeDispatcher) kinds() []event.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()

	kinds := make([]event.Kind, 0, len(f.calls))
	for _, c := range f.calls {
		kinds = append(kinds, c.kind)
	}

	return kinds
}

type fakeAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerter) AddAlert(message, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = append(f.messages, message)
}

type fakeResolver struct {
	users map[string]UserData
}

func (f *fakeResolver) GetUsers(_ context.Context, usernames []string) (GetUsersResponse, error) {
	resp := GetUsersResponse{}
	for _, name := range usernames {
		if data, ok := f.users[name]; ok {
			resp.Users = append(resp.Users, data)
		}
	}

	resp.Total = len(resp.Users)

	return resp, nil
}

func newTestClassifier(t *testing.T, threshold int) (*Classifier, *fakeDispatcher, *fakeAlerter) {
	t.Helper()

	owner := &user.User{Platform: user.PlatformTrovo, PlatformID: "1", Login: "streamer"}
	directory := user.NewDirectory(zerolog.Nop(), owner)
	t.Cleanup(directory.Close)

	dedup := event.NewDeduplicator()
	t.Cleanup(dedup.Close)

	dispatcher := &fakeDispatcher{}
	alerts := &fakeAlerter{}
	api := &fakeResolver{users: map[string]UserData{
		"lucky": {UserID: "900", UserName: "lucky", NickName: "Lucky"},
	}}

	return NewClassifier(zerolog.Nop(), dispatcher, directory, dedup, alerts, api, threshold), dispatcher, alerts
}

func TestClassifierNormalChat(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeNormal,
		MessageID: "m-1",
		SenderID:  100,
		UserName:  "chatter",
		NickName:  "Chatter",
		Content:   "hello there",
	})

	require.Equal(t, []event.Kind{event.ChatMessageReceived}, dispatcher.kinds())
	assert.Equal(t, []string{"hello", "there"}, dispatcher.calls[0].params.Arguments)
	assert.Equal(t, "chatter", dispatcher.calls[0].params.User.Login)
}

func TestClassifierMagicChat(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeMagicChatColorfulChat,
		MessageID: "m-1",
		SenderID:  100,
		UserName:  "chatter",
		Content:   "rainbow text",
	})

	assert.Equal(t, []event.Kind{event.ChatMessageReceived, event.TrovoChannelMagicChat}, dispatcher.kinds())
}

func TestClassifierRetransmittedMessageDropped(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	msg := ChatMessage{Type: TypeNormal, MessageID: "m-1", SenderID: 100, UserName: "chatter", Content: "hi"}
	c.HandleChat(t.Context(), msg)
	c.HandleChat(t.Context(), msg)

	assert.Len(t, dispatcher.kinds(), 1)
}

func TestClassifierStreamOnOff(t *testing.T) {
	t.Parallel()

	c, dispatcher, alerts := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{Type: TypeStreamOnOff, MessageID: "m-1", Content: "stream_on"})
	c.HandleChat(t.Context(), ChatMessage{Type: TypeStreamOnOff, MessageID: "m-2", Content: "stream_off"})

	require.Equal(t, []event.Kind{event.TrovoChannelStreamStart, event.TrovoChannelStreamStop}, dispatcher.kinds())
	assert.Equal(t, "streamer", dispatcher.calls[0].params.User.Login)
	assert.Contains(t, alerts.messages, "stream went live")
}

func TestClassifierFollowSuppression(t *testing.T) {
	t.Parallel()

	c, dispatcher, alerts := newTestClassifier(t, 0)

	follow := ChatMessage{Type: TypeFollowAlert, SenderID: 200, UserName: "fan"}

	follow.MessageID = "f-1"
	c.HandleChat(t.Context(), follow)

	follow.MessageID = "f-2"
	c.HandleChat(t.Context(), follow)

	assert.Equal(t, []event.Kind{event.TrovoChannelFollowed}, dispatcher.kinds())
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "followed")
}

func TestClassifierSubscription(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeSubscriptionAlert,
		MessageID: "s-1",
		SenderID:  200,
		UserName:  "fan",
		SubLevel:  "L2",
		Content:   "fan has subscribed to the channel",
	})

	require.Equal(t, []event.Kind{event.TrovoChannelSubscribed}, dispatcher.kinds())
	assert.Equal(t, "Tier 2", dispatcher.calls[0].params.SpecialIdentifiers["usersubplan"])
	assert.Equal(t, "1", dispatcher.calls[0].params.SpecialIdentifiers["usersubmonths"])
	assert.Equal(t, 2, dispatcher.calls[0].params.User.SubTier)
}

func TestClassifierResubscription(t *testing.T) {
	t.Parallel()

	c, dispatcher, alerts := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeSubscriptionAlert,
		MessageID: "s-1",
		SenderID:  200,
		UserName:  "fan",
		SubLevel:  "L1",
		Content:   "fan has renewed subscription for 7 months",
	})

	require.Equal(t, []event.Kind{event.TrovoChannelResubscribed}, dispatcher.kinds())
	assert.Equal(t, "7", dispatcher.calls[0].params.SpecialIdentifiers["usersubmonths"])

	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "7th month")
}

func TestClassifierMassGiftImmediate(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeGiftedSubscriptionSentMessage,
		MessageID: "g-1",
		SenderID:  300,
		UserName:  "patron",
		Content:   "10",
	})

	require.Equal(t, []event.Kind{event.TrovoChannelMassSubscriptionsGifted}, dispatcher.kinds())
	assert.Equal(t, "10", dispatcher.calls[0].params.SpecialIdentifiers["subsgiftedamount"])
}

func TestClassifierGiftedSubscription(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeGiftedSubscriptionMessage,
		MessageID: "g-1",
		SenderID:  300,
		UserName:  "patron",
		Content:   "patron,lucky",
	})

	require.Equal(t, []event.Kind{event.TrovoChannelSubscriptionGifted}, dispatcher.kinds())
	call := dispatcher.calls[0]
	assert.Equal(t, "patron", call.params.User.Login)
	assert.Equal(t, "lucky", call.params.TargetUser.Login)
	assert.True(t, call.params.TargetUser.IsSubscriber)
}

func TestClassifierGiftedSubscriptionUnknownRecipient(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeGiftedSubscriptionMessage,
		MessageID: "g-1",
		SenderID:  300,
		UserName:  "patron",
		Content:   "patron,stranger",
	})

	// recipient falls back to the gifter when nobody can resolve it
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "patron", dispatcher.calls[0].params.TargetUser.Login)
}

func TestClassifierRaidWelcome(t *testing.T) {
	t.Parallel()

	c, dispatcher, alerts := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:        TypeWelcomeMessageFromRaid,
		MessageID:   "r-1",
		SenderID:    400,
		UserName:    "raider",
		ContentData: map[string]json.RawMessage{"raiderNum": json.RawMessage("2500")},
	})

	require.Equal(t, []event.Kind{event.TrovoChannelRaided}, dispatcher.kinds())
	assert.Equal(t, "2500", dispatcher.calls[0].params.SpecialIdentifiers["raidviewercount"])

	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "2,500 viewers")
}

func TestClassifierSpell(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeSpell,
		MessageID: "sp-1",
		SenderID:  500,
		UserName:  "mage",
		Content:   `{"gift":"Stay Safe","num":5,"gift_value":10,"value_type":"Mana"}`,
	})

	require.Equal(t, []event.Kind{event.TrovoChannelSpellCast}, dispatcher.kinds())
	ids := dispatcher.calls[0].params.SpecialIdentifiers
	assert.Equal(t, "Stay Safe", ids["spellname"])
	assert.Equal(t, "5", ids["spellquantity"])
	assert.Equal(t, "50", ids["spelltotalvalue"])
	assert.Equal(t, "Mana", ids["spellvaluetype"])
}

func TestClassifierWelcomeJoins(t *testing.T) {
	t.Parallel()

	c, dispatcher, _ := newTestClassifier(t, 0)

	c.HandleChat(t.Context(), ChatMessage{
		Type:      TypeWelcomeMessage,
		MessageID: "w-1",
		SenderID:  600,
		UserName:  "lurker",
	})

	assert.Equal(t, []event.Kind{event.ChatUserFirstJoin, event.ChatUserJoined}, dispatcher.kinds())
}
