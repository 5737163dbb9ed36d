package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// TikTokAdapter speaks the TikTok open API OAuth flow. TikTok calls its app
// credential a client key; Settings.ClientID carries it. API responses wrap
// payloads in a data/error envelope with an in-band error code.
type TikTokAdapter struct {
	settings Settings
	client   *http.Client

	TokenURL    string
	UserInfoURL string
}

func NewTikTokAdapter(settings Settings) *TikTokAdapter {
	return &TikTokAdapter{
		settings:    settings,
		client:      newHTTPClient(settings),
		TokenURL:    "https://open.tiktokapis.com/v2/oauth/token/",
		UserInfoURL: "https://open.tiktokapis.com/v2/user/info/",
	}
}

func (a *TikTokAdapter) Platform() string    { return "tiktok" }
func (a *TikTokAdapter) DisplayName() string { return "TikTok" }

type tiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type tiktokUserInfoResponse struct {
	Data struct {
		User struct {
			OpenID        string  `json:"open_id"`
			DisplayName   string  `json:"display_name"`
			FollowerCount float64 `json:"follower_count"`
			VideoCount    float64 `json:"video_count"`
		} `json:"user"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *TikTokAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{
		"client_key":    {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.settings.RedirectURL},
		"code":          {code},
	}

	var token tiktokTokenResponse
	if err := postForm(ctx, a.client, "tiktok", "exchange", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.Error != "" {
		return nil, &APIError{Platform: "tiktok", Operation: "exchange", StatusCode: http.StatusOK, Remote: token.Error}
	}
	if token.AccessToken == "" {
		return nil, errors.New("tiktok exchange: response carried no access token")
	}

	info, err := a.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	scopes := a.settings.Scopes
	if token.Scope != "" {
		scopes = strings.Split(token.Scope, ",")
	}

	return &Grant{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: token.OpenID,
		Username:       info.Data.User.DisplayName,
		Scopes:         scopes,
	}, nil
}

func (a *TikTokAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{
		"client_key":    {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var token tiktokTokenResponse
	if err := postForm(ctx, a.client, "tiktok", "refresh", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.Error != "" {
		return nil, &APIError{Platform: "tiktok", Operation: "refresh", StatusCode: http.StatusOK, Remote: token.Error}
	}
	if token.AccessToken == "" {
		return nil, errors.New("tiktok refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *TikTokAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	info, err := a.fetchUserInfo(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	// TikTok signals token problems in-band with a 200 status.
	if info.Error.Code != "" && info.Error.Code != "ok" {
		return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
	}

	return &ProbeResult{
		OK: true,
		Metrics: map[string]float64{
			"followers": info.Data.User.FollowerCount,
			"videos":    info.Data.User.VideoCount,
		},
	}, nil
}

func (a *TikTokAdapter) fetchUserInfo(ctx context.Context, accessToken string) (*tiktokUserInfoResponse, error) {
	endpoint := a.UserInfoURL + "?fields=open_id,display_name,follower_count,video_count"
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var info tiktokUserInfoResponse
	if err := getJSON(ctx, a.client, "tiktok", "user_info", endpoint, headers, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
