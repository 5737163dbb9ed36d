package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// InstagramAdapter speaks the Instagram Basic Display flavor of the Graph
// API. Instagram has no separate refresh token: the long-lived access token
// obtained at connect time is itself the refresh credential, renewed through
// the ig_refresh_token grant. All Graph calls carry the token in the query
// string.
type InstagramAdapter struct {
	settings Settings
	client   *http.Client

	// Endpoint URLs are fields so tests and self-hosted proxies can point
	// the adapter at a different host.
	ExchangeURL string
	RefreshURL  string
	ProfileURL  string
}

func NewInstagramAdapter(settings Settings) *InstagramAdapter {
	return &InstagramAdapter{
		settings:    settings,
		client:      newHTTPClient(settings),
		ExchangeURL: "https://api.instagram.com/oauth/access_token",
		RefreshURL:  "https://graph.instagram.com/refresh_access_token",
		ProfileURL:  "https://graph.instagram.com/me",
	}
}

func (a *InstagramAdapter) Platform() string    { return "instagram" }
func (a *InstagramAdapter) DisplayName() string { return "Instagram" }

type instagramTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      any    `json:"user_id"` // number in some API versions, string in others
}

type instagramProfileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (a *InstagramAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{
		"client_id":     {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.settings.RedirectURL},
		"code":          {code},
	}

	var token instagramTokenResponse
	if err := postForm(ctx, a.client, "instagram", "exchange", a.ExchangeURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("instagram exchange: response carried no access token")
	}

	profile, err := a.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Grant{
		AccessToken: token.AccessToken,
		// The long-lived token renews itself via ig_refresh_token.
		RefreshToken:   token.AccessToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: profile.ID,
		Username:       profile.Username,
		Scopes:         a.settings.Scopes,
	}, nil
}

func (a *InstagramAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	endpoint := fmt.Sprintf(
		"%s?grant_type=ig_refresh_token&access_token=%s",
		a.RefreshURL, url.QueryEscape(refreshToken),
	)

	var token instagramTokenResponse
	if err := getJSON(ctx, a.client, "instagram", "refresh", endpoint, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("instagram refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.AccessToken, // renewed token is the next refresh credential
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *InstagramAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	if _, err := a.fetchProfile(ctx, accessToken); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	return &ProbeResult{OK: true}, nil
}

func (a *InstagramAdapter) fetchProfile(ctx context.Context, accessToken string) (*instagramProfileResponse, error) {
	endpoint := fmt.Sprintf(
		"%s?fields=id,username&access_token=%s",
		a.ProfileURL, url.QueryEscape(accessToken),
	)
	var profile instagramProfileResponse
	if err := getJSON(ctx, a.client, "instagram", "profile", endpoint, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
