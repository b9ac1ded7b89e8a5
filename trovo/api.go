package trovo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/julez-dev/encore/httputil"
	"github.com/julez-dev/encore/save"
)

const apiBaseURL = "https://open-api.trovo.tv/openplatform"

var ErrNoUserAccess = errors.New("user endpoint called when no account was provided")

type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (a APIError) Error() string {
	return fmt.Sprintf("trovo api error (%d): %s", a.Status, a.Message)
}

// AccountProvider supplies the stored account the client authenticates
// as.
type AccountProvider interface {
	GetAccountBy(id string) (save.Account, error)
}

type (
	GetUsersResponse struct {
		Total int        `json:"total"`
		Users []UserData `json:"users"`
	}

	UserData struct {
		UserID    string `json:"user_id"`
		UserName  string `json:"username"`
		NickName  string `json:"nickname"`
		ChannelID string `json:"channel_id"`
	}

	chatTokenResponse struct {
		Token string `json:"token"`
	}
)

type APIOptionFunc func(api *API)

func WithHTTPClient(client *http.Client) APIOptionFunc {
	return func(api *API) {
		api.client = client
	}
}

func WithBaseURL(url string) APIOptionFunc {
	return func(api *API) {
		api.baseURL = url
	}
}

// API is an Open Platform client scoped to one authenticated account.
type API struct {
	client *http.Client

	clientID  string
	provider  AccountProvider
	accountID string
	baseURL   string
}

func NewAPI(clientID string, provider AccountProvider, accountID string, opts ...APIOptionFunc) *API {
	api := &API{
		clientID:  clientID,
		provider:  provider,
		accountID: accountID,
		baseURL:   apiBaseURL,
	}

	for _, f := range opts {
		f(api)
	}

	if api.client == nil {
		api.client = http.DefaultClient
	}

	return api
}

// GetUsers resolves users by username.
func (a *API) GetUsers(ctx context.Context, usernames []string) (GetUsersResponse, error) {
	body, err := json.Marshal(map[string][]string{"user": usernames})
	if err != nil {
		return GetUsersResponse{}, err
	}

	return doRequest[GetUsersResponse](ctx, a, http.MethodPost, "/getusers", body)
}

// ChatToken fetches the token for the own channel's chat connection.
func (a *API) ChatToken(ctx context.Context) (string, error) {
	resp, err := doRequest[chatTokenResponse](ctx, a, http.MethodGet, "/chat/token", nil)
	if err != nil {
		return "", err
	}

	return resp.Token, nil
}

func doRequest[T any](ctx context.Context, api *API, method, endpoint string, body []byte) (T, error) {
	var data T

	if api.provider == nil {
		return data, ErrNoUserAccess
	}

	account, err := api.provider.GetAccountBy(api.accountID)
	if err != nil {
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, method, api.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return data, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-ID", api.clientID)
	req.Header.Set("Authorization", "OAuth "+account.AccessToken)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// the API rate limits per client, wait out a 429 instead of failing
	resp, err := httputil.RetryOn429(ctx, func() (*http.Response, error) {
		retryReq, err := httputil.CloneRequest(req)
		if err != nil {
			return nil, err
		}

		return api.client.Do(retryReq)
	})
	if err != nil {
		return data, err
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return data, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp APIError
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return data, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return data, errResp
	}

	if err := json.Unmarshal(respBody, &data); err != nil {
		return data, err
	}

	return data, nil
}
