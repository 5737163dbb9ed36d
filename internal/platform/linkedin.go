package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// LinkedInAdapter speaks the LinkedIn OAuth flow. Client credentials travel
// in the form body, not a Basic header. Refresh tokens are only issued to
// apps enrolled in LinkedIn's refresh program, so a Grant may legitimately
// have no refresh credential.
type LinkedInAdapter struct {
	settings Settings
	client   *http.Client

	TokenURL string
	MeURL    string
}

func NewLinkedInAdapter(settings Settings) *LinkedInAdapter {
	return &LinkedInAdapter{
		settings: settings,
		client:   newHTTPClient(settings),
		TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
		MeURL:    "https://api.linkedin.com/v2/me",
	}
}

func (a *LinkedInAdapter) Platform() string    { return "linkedin" }
func (a *LinkedInAdapter) DisplayName() string { return "LinkedIn" }

type linkedinTokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

type linkedinMeResponse struct {
	ID                 string `json:"id"`
	LocalizedFirstName string `json:"localizedFirstName"`
	LocalizedLastName  string `json:"localizedLastName"`
}

func (a *LinkedInAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {a.settings.RedirectURL},
		"client_id":     {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
	}

	var token linkedinTokenResponse
	if err := postForm(ctx, a.client, "linkedin", "exchange", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("linkedin exchange: response carried no access token")
	}

	me, err := a.fetchMe(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	username := me.LocalizedFirstName
	if me.LocalizedLastName != "" {
		username += " " + me.LocalizedLastName
	}

	return &Grant{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: me.ID,
		Username:       username,
		Scopes:         a.settings.Scopes,
	}, nil
}

func (a *LinkedInAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
	}

	var token linkedinTokenResponse
	if err := postForm(ctx, a.client, "linkedin", "refresh", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("linkedin refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *LinkedInAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	if _, err := a.fetchMe(ctx, accessToken); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	return &ProbeResult{OK: true}, nil
}

func (a *LinkedInAdapter) fetchMe(ctx context.Context, accessToken string) (*linkedinMeResponse, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var me linkedinMeResponse
	if err := getJSON(ctx, a.client, "linkedin", "me", a.MeURL, headers, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
