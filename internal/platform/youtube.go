package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// YouTubeAdapter rides on the Google OAuth endpoints; the scopes select the
// YouTube Data API. Google returns a refresh token only on the first consent
// and keeps it stable afterwards.
type YouTubeAdapter struct {
	settings Settings
	client   *http.Client

	TokenURL    string
	ChannelsURL string
}

func NewYouTubeAdapter(settings Settings) *YouTubeAdapter {
	return &YouTubeAdapter{
		settings:    settings,
		client:      newHTTPClient(settings),
		TokenURL:    "https://oauth2.googleapis.com/token",
		ChannelsURL: "https://www.googleapis.com/youtube/v3/channels",
	}
}

func (a *YouTubeAdapter) Platform() string    { return "youtube" }
func (a *YouTubeAdapter) DisplayName() string { return "YouTube" }

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

type youtubeChannelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			// The Data API serializes counters as strings.
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (a *YouTubeAdapter) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{
		"client_id":     {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.settings.RedirectURL},
		"code":          {code},
	}

	var token googleTokenResponse
	if err := postForm(ctx, a.client, "youtube", "exchange", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("youtube exchange: response carried no access token")
	}

	channels, err := a.fetchChannels(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if len(channels.Items) == 0 {
		return nil, errors.New("youtube exchange: account has no channel")
	}

	scopes := a.settings.Scopes
	if token.Scope != "" {
		scopes = strings.Fields(token.Scope)
	}

	return &Grant{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresIn:      token.ExpiresIn,
		PlatformUserID: channels.Items[0].ID,
		Username:       channels.Items[0].Snippet.Title,
		Scopes:         scopes,
	}, nil
}

func (a *YouTubeAdapter) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{
		"client_id":     {a.settings.ClientID},
		"client_secret": {a.settings.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var token googleTokenResponse
	if err := postForm(ctx, a.client, "youtube", "refresh", a.TokenURL, form, nil, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("youtube refresh: response carried no access token")
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken, // usually empty; Google rotates rarely
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func (a *YouTubeAdapter) Probe(ctx context.Context, accessToken string) (*ProbeResult, error) {
	channels, err := a.fetchChannels(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && statusRejectsToken(apiErr.StatusCode) {
			return &ProbeResult{OK: false, Issue: "token rejected by platform"}, nil
		}
		return nil, err
	}
	if len(channels.Items) == 0 {
		return &ProbeResult{OK: false, Issue: "account has no channel"}, nil
	}

	stats := channels.Items[0].Statistics
	metrics := map[string]float64{}
	for key, raw := range map[string]string{
		"subscribers": stats.SubscriberCount,
		"videos":      stats.VideoCount,
		"views":       stats.ViewCount,
	} {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			metrics[key] = v
		}
	}

	return &ProbeResult{OK: true, Metrics: metrics}, nil
}

func (a *YouTubeAdapter) fetchChannels(ctx context.Context, accessToken string) (*youtubeChannelsResponse, error) {
	endpoint := fmt.Sprintf(
		"%s?part=snippet,statistics&mine=true&access_token=%s",
		a.ChannelsURL, url.QueryEscape(accessToken),
	)

	var channels youtubeChannelsResponse
	if err := getJSON(ctx, a.client, "youtube", "channels", endpoint, nil, &channels); err != nil {
		return nil, err
	}
	return &channels, nil
}
