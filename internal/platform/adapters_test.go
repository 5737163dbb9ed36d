package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkedInAdapter_ExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/accessToken", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		// Client credentials travel in the body, not a Basic header
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "li-access", "expires_in": 5184000}`))
	})
	mux.HandleFunc("/v2/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer li-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "li-123", "localizedFirstName": "Ada", "localizedLastName": "Lovelace"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewLinkedInAdapter(testSettings())
	adapter.TokenURL = srv.URL + "/oauth/v2/accessToken"
	adapter.MeURL = srv.URL + "/v2/me"

	grant, err := adapter.ExchangeCode(context.Background(), "code-xyz")
	require.NoError(t, err)
	assert.Equal(t, "li-access", grant.AccessToken)
	// LinkedIn only issues refresh tokens to enrolled apps
	assert.Empty(t, grant.RefreshToken)
	assert.Equal(t, "li-123", grant.PlatformUserID)
	assert.Equal(t, "Ada Lovelace", grant.Username)
}

func TestFacebookAdapter_ExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		// Everything in the query string on the Graph API
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "client-secret", q.Get("client_secret"))
		assert.Equal(t, "fb-code", q.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "fb-long-lived", "token_type": "bearer", "expires_in": 5183944}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fb-long-lived", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "fb-42", "name": "Grace Hopper"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewFacebookAdapter(testSettings())
	adapter.TokenURL = srv.URL + "/oauth/access_token"
	adapter.MeURL = srv.URL + "/me"

	grant, err := adapter.ExchangeCode(context.Background(), "fb-code")
	require.NoError(t, err)
	assert.Equal(t, "fb-long-lived", grant.AccessToken)
	// The long-lived token is its own refresh credential
	assert.Equal(t, "fb-long-lived", grant.RefreshToken)
	assert.Equal(t, "Grace Hopper", grant.Username)
}

func TestFacebookAdapter_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "old-long-lived", q.Get("fb_exchange_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "renewed-long-lived", "expires_in": 5183944}`))
	}))
	defer srv.Close()

	adapter := NewFacebookAdapter(testSettings())
	adapter.TokenURL = srv.URL

	creds, err := adapter.Refresh(context.Background(), "old-long-lived")
	require.NoError(t, err)
	assert.Equal(t, "renewed-long-lived", creds.AccessToken)
	assert.Equal(t, "renewed-long-lived", creds.RefreshToken)
}

func TestInstagramAdapter_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ig_refresh_token", q.Get("grant_type"))
		assert.Equal(t, "long-lived-token", q.Get("access_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "renewed-token", "token_type": "bearer", "expires_in": 5184000}`))
	}))
	defer srv.Close()

	adapter := NewInstagramAdapter(testSettings())
	adapter.RefreshURL = srv.URL

	creds, err := adapter.Refresh(context.Background(), "long-lived-token")
	require.NoError(t, err)
	assert.Equal(t, "renewed-token", creds.AccessToken)
	assert.Equal(t, "renewed-token", creds.RefreshToken)
	assert.Equal(t, int64(5184000), creds.ExpiresIn)
}

func TestInstagramAdapter_ExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "ig-token", "user_id": 17841400000000000}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ig-token", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "17841400000000000", "username": "photogirl"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewInstagramAdapter(testSettings())
	adapter.ExchangeURL = srv.URL + "/oauth/access_token"
	adapter.ProfileURL = srv.URL + "/me"

	grant, err := adapter.ExchangeCode(context.Background(), "ig-code")
	require.NoError(t, err)
	assert.Equal(t, "ig-token", grant.AccessToken)
	assert.Equal(t, "ig-token", grant.RefreshToken)
	assert.Equal(t, "photogirl", grant.Username)
}

func TestYouTubeAdapter_ProbeParsesStringStatistics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snippet,statistics", r.URL.Query().Get("part"))
		assert.Equal(t, "true", r.URL.Query().Get("mine"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [{
				"id": "UC123",
				"snippet": {"title": "My Channel"},
				"statistics": {"subscriberCount": "1500", "videoCount": "37", "viewCount": "250000"}
			}]
		}`))
	}))
	defer srv.Close()

	adapter := NewYouTubeAdapter(testSettings())
	adapter.ChannelsURL = srv.URL

	result, err := adapter.Probe(context.Background(), "yt-token")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1500.0, result.Metrics["subscribers"])
	assert.Equal(t, 37.0, result.Metrics["videos"])
	assert.Equal(t, 250000.0, result.Metrics["views"])
}

func TestYouTubeAdapter_ProbeNoChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	adapter := NewYouTubeAdapter(testSettings())
	adapter.ChannelsURL = srv.URL

	result, err := adapter.Probe(context.Background(), "yt-token")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "account has no channel", result.Issue)
}

func TestYouTubeAdapter_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "google-refresh", r.PostForm.Get("refresh_token"))

		// Google keeps the refresh token stable and omits it on refresh
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "fresh-access", "expires_in": 3599}`))
	}))
	defer srv.Close()

	adapter := NewYouTubeAdapter(testSettings())
	adapter.TokenURL = srv.URL

	creds, err := adapter.Refresh(context.Background(), "google-refresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", creds.AccessToken)
	assert.Empty(t, creds.RefreshToken)
}

func TestTikTokAdapter_ExchangeUsesClientKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/oauth/token/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_key"))
		assert.Empty(t, r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "tt-access",
			"refresh_token": "tt-refresh",
			"expires_in": 86400,
			"open_id": "open-id-1",
			"scope": "user.info.basic,video.list"
		}`))
	})
	mux.HandleFunc("/v2/user/info/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tt-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {"user": {"open_id": "open-id-1", "display_name": "dancer", "follower_count": 12, "video_count": 3}},
			"error": {"code": "ok", "message": ""}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewTikTokAdapter(testSettings())
	adapter.TokenURL = srv.URL + "/v2/oauth/token/"
	adapter.UserInfoURL = srv.URL + "/v2/user/info/"

	grant, err := adapter.ExchangeCode(context.Background(), "tt-code")
	require.NoError(t, err)
	assert.Equal(t, "tt-access", grant.AccessToken)
	assert.Equal(t, "tt-refresh", grant.RefreshToken)
	assert.Equal(t, "open-id-1", grant.PlatformUserID)
	assert.Equal(t, "dancer", grant.Username)
	assert.Equal(t, []string{"user.info.basic", "video.list"}, grant.Scopes)
}

func TestTikTokAdapter_InBandError(t *testing.T) {
	// TikTok reports OAuth failures with a 200 status and an error field
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "code expired"}`))
	}))
	defer srv.Close()

	adapter := NewTikTokAdapter(testSettings())
	adapter.TokenURL = srv.URL

	_, err := adapter.Refresh(context.Background(), "stale-refresh")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_grant", apiErr.Remote)
}

func TestTikTokAdapter_ProbeInBandRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {}, "error": {"code": "access_token_invalid", "message": "..."}}`))
	}))
	defer srv.Close()

	adapter := NewTikTokAdapter(testSettings())
	adapter.UserInfoURL = srv.URL

	result, err := adapter.Probe(context.Background(), "bad-token")
	require.NoError(t, err)
	assert.False(t, result.OK)
}
