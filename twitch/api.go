package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"resenje.org/singleflight"

	"github.com/julez-dev/encore/save"
	"github.com/julez-dev/encore/twitch/eventsub"
)

var (
	ErrNoAuthProvided     = errors.New("one of app secret or user access token needs to be provided")
	ErrNoUserAccess       = errors.New("user endpoint called when no token was provided")
	ErrNoClientSecret     = errors.New("no app access token was provided")
	ErrAppTokenStatusCode = errors.New("invalid status code response while creating app access token")
	ErrUserNotFound       = errors.New("user not found")
)

const baseURL = "https://api.twitch.tv/helix"

type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (string, string, error)
}

type AccountProvider interface {
	GetAccountBy(id string) (save.Account, error)
	UpdateTokensFor(id, accessToken, refreshToken string) error
}

type APIOptionFunc func(api *API) error

func WithHTTPClient(client *http.Client) APIOptionFunc {
	return func(api *API) error {
		api.client = client
		return nil
	}
}

func WithClientSecret(secret string) APIOptionFunc {
	return func(api *API) error {
		api.clientSecret = secret
		return nil
	}
}

func WithBaseURL(url string) APIOptionFunc {
	return func(api *API) error {
		api.baseURL = url
		return nil
	}
}

func WithUserAuthentication(provider AccountProvider, refresher TokenRefresher, accountID string) APIOptionFunc {
	return func(api *API) error {
		api.refresher = refresher
		api.provider = provider
		api.accountID = accountID
		return nil
	}
}

// API is a Helix client scoped to one authenticated account.
type API struct {
	client *http.Client

	provider  AccountProvider
	refresher TokenRefresher
	accountID string

	m             *sync.Mutex
	singleRefresh *singleflight.Group[string, string]
	singleUsers   *singleflight.Group[string, UserResponse]

	appAccessToken string

	clientID     string
	clientSecret string
	baseURL      string
}

func NewAPI(clientID string, opts ...APIOptionFunc) (*API, error) {
	api := &API{
		clientID:      clientID,
		m:             &sync.Mutex{},
		singleRefresh: &singleflight.Group[string, string]{},
		singleUsers:   &singleflight.Group[string, UserResponse]{},
		baseURL:       baseURL,
	}

	for _, f := range opts {
		if err := f(api); err != nil {
			return nil, err
		}
	}

	if api.client == nil {
		api.client = http.DefaultClient
	}

	return api, nil
}

// GetUsers resolves users by login and/or ID. Concurrent identical
// lookups are collapsed into one request.
func (a *API) GetUsers(ctx context.Context, logins []string, ids []string) (UserResponse, error) {
	values := url.Values{}
	for _, login := range logins {
		values.Add("login", login)
	}
	for _, id := range ids {
		values.Add("id", id)
	}

	url := fmt.Sprintf("/users?%s", values.Encode())

	data, _, err := a.singleUsers.Do(ctx, url, func(ctx context.Context) (UserResponse, error) {
		if a.provider != nil {
			return doAuthenticatedUserRequest[UserResponse](ctx, a, http.MethodGet, url, nil)
		}

		return doAuthenticatedAppRequest[UserResponse](ctx, a, http.MethodGet, url, nil)
	})
	if err != nil {
		return UserResponse{}, err
	}

	return data, nil
}

func (a *API) GetStreamInfo(ctx context.Context, broadcastID []string) (GetStreamsResponse, error) {
	values := url.Values{}
	for _, id := range broadcastID {
		values.Add("user_id", id)
	}

	values.Add("type", "all")

	url := fmt.Sprintf("/streams?%s", values.Encode())

	var (
		resp GetStreamsResponse
		err  error
	)

	if a.provider != nil {
		resp, err = doAuthenticatedUserRequest[GetStreamsResponse](ctx, a, http.MethodGet, url, nil)
	} else {
		resp, err = doAuthenticatedAppRequest[GetStreamsResponse](ctx, a, http.MethodGet, url, nil)
	}
	if err != nil {
		return GetStreamsResponse{}, err
	}

	return resp, nil
}

func (a *API) CreateEventSubSubscription(ctx context.Context, reqData eventsub.CreateSubscriptionRequest) (eventsub.CreateSubscriptionResponse, error) {
	if a.provider == nil {
		return eventsub.CreateSubscriptionResponse{}, ErrNoUserAccess
	}

	reqBytes, err := json.Marshal(reqData)
	if err != nil {
		return eventsub.CreateSubscriptionResponse{}, err
	}

	resp, err := doAuthenticatedUserRequest[eventsub.CreateSubscriptionResponse](ctx, a, http.MethodPost, "/eventsub/subscriptions", reqBytes)
	if err != nil {
		return eventsub.CreateSubscriptionResponse{}, err
	}

	return resp, nil
}

// https://dev.twitch.tv/docs/api/reference/#get-eventsub-subscriptions
func (a *API) FetchEventSubSubscriptions(ctx context.Context, status, subType, userID string) ([]eventsub.Subscription, error) {
	if a.provider == nil {
		return nil, ErrNoUserAccess
	}

	subs := []eventsub.Subscription{}
	var after string

	for {
		values := url.Values{}
		values.Add("status", status)
		if subType != "" {
			values.Add("type", subType)
		}
		if userID != "" {
			values.Add("user_id", userID)
		}
		if after != "" {
			values.Add("after", after)
		}

		url := fmt.Sprintf("/eventsub/subscriptions?%s", values.Encode())

		resp, err := doAuthenticatedUserRequest[eventsub.GetSubscriptionsResponse](ctx, a, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		subs = append(subs, resp.Data...)

		if resp.Pagination.Cursor == "" {
			break
		}

		after = resp.Pagination.Cursor
	}

	return subs, nil
}

func (a *API) DeleteEventSubSubscription(ctx context.Context, id string) error {
	if a.provider == nil {
		return ErrNoUserAccess
	}

	values := url.Values{}
	values.Add("id", id)

	url := fmt.Sprintf("/eventsub/subscriptions?%s", values.Encode())

	if _, err := doAuthenticatedUserRequest[any](ctx, a, http.MethodDelete, url, nil); err != nil {
		return err
	}

	return nil
}

func (a *API) SendChatAnnouncement(ctx context.Context, broadcasterID string, moderatorID string, req CreateChatAnnouncementRequest) error {
	if a.provider == nil {
		return ErrNoUserAccess
	}

	values := url.Values{}
	values.Add("broadcaster_id", broadcasterID)
	values.Add("moderator_id", moderatorID)

	url := fmt.Sprintf("/chat/announcements?%s", values.Encode())

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return err
	}

	_, err = doAuthenticatedUserRequest[struct{}](ctx, a, http.MethodPost, url, reqBytes)
	if err != nil {
		return err
	}

	return nil
}

func (a *API) createAppAccessToken(ctx context.Context) (string, error) {
	if a.clientSecret == "" {
		return "", ErrNoClientSecret
	}

	formVal := url.Values{}
	formVal.Set("client_id", a.clientID)
	formVal.Set("client_secret", a.clientSecret)
	formVal.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://id.twitch.tv/oauth2/token", strings.NewReader(formVal.Encode()))
	if err != nil {
		return "", err
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	type tokenResp struct {
		AccessToken string `json:"access_token"`
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var token tokenResp
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", ErrAppTokenStatusCode
	}

	return token.AccessToken, nil
}

func doAuthenticatedAppRequest[T any](ctx context.Context, api *API, method, url string, body []byte) (T, error) {
	api.m.Lock()
	defer api.m.Unlock()

	if api.clientSecret == "" {
		var d T
		return d, ErrNoClientSecret
	}

	resp, err := doAuthenticatedRequest[T](ctx, api, api.appAccessToken, method, url, body)
	if err != nil {
		apiErr := APIError{}
		// Unauthorized - the access token may be expired
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			token, err := api.createAppAccessToken(ctx)
			if err != nil {
				return resp, err
			}

			api.appAccessToken = token

			// retry request
			return doAuthenticatedRequest[T](ctx, api, api.appAccessToken, method, url, body)
		}

		return resp, err
	}

	return resp, nil
}

func doAuthenticatedUserRequest[T any](ctx context.Context, api *API, method, url string, body []byte) (T, error) {
	user, err := api.provider.GetAccountBy(api.accountID)
	if err != nil {
		var d T
		return d, err
	}

	resp, err := doAuthenticatedRequest[T](ctx, api, user.AccessToken, method, url, body)
	if err != nil {
		apiErr := APIError{}
		// Unauthorized - the access token may be expired
		if errors.As(err, &apiErr) &&
			apiErr.Status == http.StatusUnauthorized &&
			(apiErr.Message == "Invalid OAuth token" || apiErr.Message == "OAuth token is missing") {

			// Single flight to prevent multiple refreshes at the same time
			// If multiple requests are made at the same time, only one will refresh the token
			// The others will wait for the first to finish then use the new token
			key := "user-refresh" + user.ID + user.RefreshToken
			accessToken, shared, err := api.singleRefresh.Do(ctx, key, func(ctx context.Context) (string, error) {
				log.Logger.Info().Str("user-id", user.ID).Msg("running singleflight for token refresh")
				// refresh tokens
				accessToken, refreshToken, err := api.refresher.RefreshToken(ctx, user.RefreshToken)
				if err != nil {
					return "", err
				}

				// persists new tokens
				if err := api.provider.UpdateTokensFor(user.ID, accessToken, refreshToken); err != nil {
					return "", err
				}

				return accessToken, nil
			})
			if err != nil {
				log.Logger.Err(err).Str("user-id", user.ID).Bool("shared", shared).Msg("could not refresh token")

				api.singleRefresh.Forget(key)
				return resp, err
			}

			log.Logger.Info().Str("user-id", user.ID).Bool("shared", shared).Msg("refreshed token")

			// retry request
			return doAuthenticatedRequest[T](ctx, api, accessToken, method, url, body)
		}

		return resp, err
	}

	return resp, nil
}

func doAuthenticatedRequest[T any](ctx context.Context, api *API, token, method, endpoint string, body []byte) (T, error) {
	var data T

	url := fmt.Sprintf("%s%s", api.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return data, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Client-Id", api.clientID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return data, err
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return data, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return data, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Is rate-limit reached?
		// Then wait
		if resp.StatusCode == http.StatusTooManyRequests && resp.Header.Get("Ratelimit-Reset") != "" {
			if endpoint == "/eventsub/subscriptions" {
				return data, fmt.Errorf("reached event sub cost limit")
			}

			waitUntil, err := strconv.Atoi(resp.Header.Get("Ratelimit-Reset"))
			if err != nil {
				return data, err
			}

			diff := time.Until(time.Unix(int64(waitUntil), 0)) + time.Second*1
			timer := time.NewTimer(diff)

			defer func() {
				timer.Stop()
				select {
				case <-timer.C:
				default:
				}
			}()

			select {
			case <-timer.C: // reset time is reached, try again
				return doAuthenticatedRequest[T](ctx, api, token, method, endpoint, body)
			case <-ctx.Done():
				timer.Stop()
				return data, ctx.Err()
			}
		}

		var errResp APIError
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return data, err
		}

		return data, errResp
	}

	if err := json.Unmarshal(respBody, &data); err != nil {
		return data, err
	}

	return data, nil
}
