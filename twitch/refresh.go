package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Refresher exchanges a refresh token for a fresh token pair against the
// Twitch OAuth endpoint. It satisfies the API's refresh contract.
type Refresher struct {
	client       *http.Client
	clientID     string
	clientSecret string
}

func NewRefresher(client *http.Client, clientID, clientSecret string) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Refresher{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (r *Refresher) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	formVal := url.Values{}
	formVal.Set("client_id", r.clientID)
	formVal.Set("client_secret", r.clientSecret)
	formVal.Set("grant_type", "refresh_token")
	formVal.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://id.twitch.tv/oauth2/token", strings.NewReader(formVal.Encode()))
	if err != nil {
		return "", "", err
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", err
	}

	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("got non-200 status code %d while refreshing token", resp.StatusCode)
	}

	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(bodyBytes, &pair); err != nil {
		return "", "", err
	}

	return pair.AccessToken, pair.RefreshToken, nil
}
