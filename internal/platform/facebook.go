package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// FacebookAdapter speaks the Facebook Graph OAuth flow. Facebook issues no
// refresh token; the long-lived user token is renewed through the
// fb_exchange_token grant, so the access token doubles as the refresh
// credential. Everything travels in the query string.
type FacebookAdapter struct {
	settings Settings
	client   *http.Client

	TokenURL string
	MeURL    string
}

func NewFacebookAdapter(settings Settings) *FacebookAdapter {
	return &FacebookAdapter{
		settings: settings,
		client:   newHTTPClient(settings),
		TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
		MeURL:    "https://graph.facebook.com/v19.0/me",
	}
}

func (a *FacebookAdapter) Platform() string    { return "facebook" }
func (a *FacebookAdapter) DisplayName() string { return "Facebook" }

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type facebookMeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *FacebookAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	endpoint := fmt.Sprintf(
		"%s?client_id=%s&redirect_uri=%s&client_secret=%s&code=%s",
		a.TokenURL,
		url.QueryEscape(a.settings.ClientID),
		url.QueryEscape(a.settings.RedirectURL),
		url.QueryEscape(a.settings.ClientSecret),
		url.QueryEscape(code),
	)

	var token facebookTokenResponse
	if err := getJSON(ctx, a.client, "facebook", "exchange", endpoint, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("facebook exchange: response carried no access token")
	}

	me, err := a.fetchMe(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Grant{
		AccessToken: token.AccessToken,
		// Renewed through fb_exchange_token, so it refreshes itself.
		RefreshToken:   token.AccessToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: me.ID,
		Username:       me.Name,
		Scopes:         a.settings.Scopes,
	}, nil
}

func (a *FacebookAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	endpoint := fmt.Sprintf(
		"%s?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		a.TokenURL,
		url.QueryEscape(a.settings.ClientID),
		url.QueryEscape(a.settings.ClientSecret),
		url.QueryEscape(refreshToken),
	)

	var token facebookTokenResponse
	if err := getJSON(ctx, a.client, "facebook", "refresh", endpoint, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("facebook refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.AccessToken,
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *FacebookAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	if _, err := a.fetchMe(ctx, accessToken); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	return &ProbeResult{OK: true}, nil
}

func (a *FacebookAdapter) fetchMe(ctx context.Context, accessToken string) (*facebookMeResponse, error) {
	endpoint := fmt.Sprintf(
		"%s?fields=id,name&access_token=%s", a.MeURL, url.QueryEscape(accessToken),
	)

	var me facebookMeResponse
	if err := getJSON(ctx, a.client, "facebook", "me", endpoint, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
