package platform

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// TwitterAdapter speaks the X (Twitter) v2 OAuth flow. Token calls
// authenticate the app with HTTP Basic credentials; API calls are bearer
// requests. Refresh tokens rotate on every use.
type TwitterAdapter struct {
	settings Settings
	client   *http.Client

	TokenURL string
	MeURL    string
}

func NewTwitterAdapter(settings Settings) *TwitterAdapter {
	return &TwitterAdapter{
		settings: settings,
		client:   newHTTPClient(settings),
		TokenURL: "https://api.twitter.com/2/oauth2/token",
		MeURL:    "https://api.twitter.com/2/users/me",
	}
}

func (a *TwitterAdapter) Platform() string    { return "twitter" }
func (a *TwitterAdapter) DisplayName() string { return "Twitter" }

func (a *TwitterAdapter) basicAuth() string {
	raw := a.settings.ClientID + ":" + a.settings.ClientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

type twitterTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

type twitterMeResponse struct {
	Data struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		PublicMetrics struct {
			FollowersCount float64 `json:"followers_count"`
			FollowingCount float64 `json:"following_count"`
			TweetCount     float64 `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (a *TwitterAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {a.settings.RedirectURL},
	}
	headers := map[string]string{"Authorization": a.basicAuth()}

	var token twitterTokenResponse
	if err := postForm(ctx, a.client, "twitter", "exchange", a.TokenURL, form, headers, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("twitter exchange: response carried no access token")
	}

	me, err := a.fetchMe(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	scopes := a.settings.Scopes
	if token.Scope != "" {
		scopes = strings.Fields(token.Scope)
	}

	return &Grant{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: me.Data.ID,
		Username:       me.Data.Username,
		Scopes:         scopes,
	}, nil
}

func (a *TwitterAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	headers := map[string]string{"Authorization": a.basicAuth()}

	var token twitterTokenResponse
	if err := postForm(ctx, a.client, "twitter", "refresh", a.TokenURL, form, headers, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("twitter refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken, // rotated on every refresh
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *TwitterAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	me, err := a.fetchMe(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	return &ProbeResult{
		OK: true,
		Metrics: map[string]float64{
			"followers": me.Data.PublicMetrics.FollowersCount,
			"following": me.Data.PublicMetrics.FollowingCount,
			"tweets":    me.Data.PublicMetrics.TweetCount,
		},
	}, nil
}

func (a *TwitterAdapter) fetchMe(ctx context.Context, accessToken string) (*twitterMeResponse, error) {
	endpoint := a.MeURL + "?user.fields=public_metrics"
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var me twitterMeResponse
	if err := getJSON(ctx, a.client, "twitter", "me", endpoint, headers, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
