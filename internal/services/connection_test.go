package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/postline/postline/internal/cache"
	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/crypto"
	"github.com/postline/postline/internal/metrics"
	"github.com/postline/postline/internal/mocks"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testCipherKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// testFreeLimit is the free-plan connection cap used across these tests.
const testFreeLimit = 2

type testEnv struct {
	svc     *ConnectionService
	store   *store.Store
	cipher  *crypto.Cipher
	adapter *mocks.MockAdapter
}

// newTestEnv wires a connection service against an in-memory database and a
// single mocked adapter registered under the "twitter" key.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRecorder(t, metrics.NewNoopMetrics())
}

func newTestEnvWithRecorder(t *testing.T, recorder core.Recorder) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cipher, err := crypto.New(testCipherKey)
	require.NoError(t, err)

	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Platform().Return("twitter").AnyTimes()

	registry, err := platform.NewRegistry(adapter)
	require.NoError(t, err)

	entitlements := NewEntitlementService(s, cache.NewMemoryCache[int](), testFreeLimit)
	audit := NewAuditService(s, false, 0)

	svc := NewConnectionService(
		s, cipher, registry, entitlements, audit, recorder, 24*time.Hour,
	)

	return &testEnv{svc: svc, store: s, cipher: cipher, adapter: adapter}
}

// recorderSpy captures the metric calls the lifecycle methods are expected to
// make; everything else falls through to the noop recorder.
type recorderSpy struct {
	metrics.NoopMetrics
	apiCalls  []string
	limitPlan string
}

func (r *recorderSpy) RecordPlatformAPICall(platform, operation string, _ time.Duration) {
	r.apiCalls = append(r.apiCalls, platform+":"+operation)
}

func (r *recorderSpy) RecordConnectionLimitHit(plan string) {
	r.limitPlan = plan
}

// seedConnection stores a connection with properly encrypted credentials and
// returns it alongside the plaintext tokens used.
func (e *testEnv) seedConnection(
	t *testing.T, userID, platformKey, accessToken, refreshToken string,
	expiresAt *time.Time, status string,
) *models.Connection {
	t.Helper()

	encAccess, err := e.cipher.Encrypt(accessToken)
	require.NoError(t, err)
	var encRefresh string
	if refreshToken != "" {
		encRefresh, err = e.cipher.Encrypt(refreshToken)
		require.NoError(t, err)
	}

	conn := &models.Connection{
		UserID:                userID,
		Platform:              platformKey,
		PlatformUserID:        "remote-1",
		Username:              "someone",
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		TokenExpiresAt:        expiresAt,
		Status:                status,
	}
	require.NoError(t, e.store.UpsertConnection(conn))
	return conn
}

func future(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestConnect_StoresEncryptedCredentials(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()

	env.adapter.EXPECT().
		ExchangeCode(gomock.Any(), "auth-code").
		Return(&platform.Grant{
			AccessToken:    "plain-access",
			RefreshToken:   "plain-refresh",
			ExpiresIn:      7200,
			PlatformUserID: "remote-42",
			Username:       "birduser",
			Scopes:         []string{"tweet.read", "offline.access"},
		}, nil)

	conn, err := env.svc.Connect(context.Background(), userID, "twitter", "auth-code")
	require.NoError(t, err)

	stored, err := env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, "remote-42", stored.PlatformUserID)
	assert.Equal(t, "birduser", stored.Username)
	assert.Equal(t, "tweet.read offline.access", stored.Scopes)
	require.NotNil(t, stored.TokenExpiresAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *stored.TokenExpiresAt, time.Minute)

	// Only ciphertext at rest
	assert.NotEqual(t, "plain-access", stored.EncryptedAccessToken)
	assert.NotEqual(t, "plain-refresh", stored.EncryptedRefreshToken)
	assert.NotContains(t, stored.EncryptedAccessToken, "plain-access")

	decrypted, err := env.cipher.Decrypt(stored.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "plain-access", decrypted)
	decrypted, err = env.cipher.Decrypt(stored.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "plain-refresh", decrypted)
}

func TestConnect_UnsupportedPlatform(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Connect(context.Background(), uuid.New().String(), "myspace", "code")
	assert.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}

func TestConnect_LimitReachedBeforeExchange(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()

	// Fill the free-plan quota with other platforms
	env.seedConnection(t, userID, "linkedin", "a", "b", nil, models.StatusActive)
	env.seedConnection(t, userID, "youtube", "c", "d", nil, models.StatusActive)

	// No ExchangeCode expectation: the single-use code must not be spent
	_, err := env.svc.Connect(context.Background(), userID, "twitter", "precious-code")
	assert.ErrorIs(t, err, ErrLimitReached)
}

func TestConnect_ReconnectReusesSlot(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()

	env.seedConnection(t, userID, "twitter", "old-access", "old-refresh", nil, models.StatusNeedsReauth)
	env.seedConnection(t, userID, "linkedin", "a", "b", nil, models.StatusActive)

	env.adapter.EXPECT().
		ExchangeCode(gomock.Any(), "fresh-code").
		Return(&platform.Grant{AccessToken: "fresh-access", RefreshToken: "fresh-refresh"}, nil)

	// At the limit, but reconnecting an existing platform is allowed
	_, err := env.svc.Connect(context.Background(), userID, "twitter", "fresh-code")
	require.NoError(t, err)

	count, err := env.store.CountConnectionsByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	stored, err := env.store.GetConnectionByUserAndPlatform(userID, "twitter")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	decrypted, err := env.cipher.Decrypt(stored.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", decrypted)
}

func TestConnect_ProUserHasNoLimit(t *testing.T) {
	env := newTestEnv(t)

	user := &models.User{Username: "pro", Email: "pro@example.com", PasswordHash: "x", Plan: models.PlanPro}
	require.NoError(t, env.store.CreateUser(user))

	env.seedConnection(t, user.ID, "linkedin", "a", "b", nil, models.StatusActive)
	env.seedConnection(t, user.ID, "youtube", "c", "d", nil, models.StatusActive)
	env.seedConnection(t, user.ID, "facebook", "e", "f", nil, models.StatusActive)

	env.adapter.EXPECT().
		ExchangeCode(gomock.Any(), "code").
		Return(&platform.Grant{AccessToken: "access"}, nil)

	_, err := env.svc.Connect(context.Background(), user.ID, "twitter", "code")
	require.NoError(t, err)
}

func TestConnect_ExchangeFailure(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()

	env.adapter.EXPECT().
		ExchangeCode(gomock.Any(), "bad-code").
		Return(nil, &platform.APIError{Platform: "twitter", Operation: "exchange", StatusCode: http.StatusBadRequest})

	_, err := env.svc.Connect(context.Background(), userID, "twitter", "bad-code")
	require.Error(t, err)

	// Nothing stored on a failed exchange
	count, err := env.store.CountConnectionsByUserID(userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRefresh_RotatedToken(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "old-access", "old-refresh", future(time.Hour), models.StatusActive)

	env.adapter.EXPECT().
		Refresh(gomock.Any(), "old-refresh").
		Return(&platform.Credentials{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    7200,
		}, nil)

	refreshed, err := env.svc.Refresh(context.Background(), userID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, refreshed.Status)

	decrypted, err := env.cipher.Decrypt(refreshed.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access", decrypted)
	decrypted, err = env.cipher.Decrypt(refreshed.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", decrypted)
}

func TestRefresh_UnrotatedTokenKeepsStoredCiphertext(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "old-access", "stable-refresh", nil, models.StatusActive)

	before, err := env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)

	// Platform returns the same refresh credential it was given
	env.adapter.EXPECT().
		Refresh(gomock.Any(), "stable-refresh").
		Return(&platform.Credentials{AccessToken: "new-access", RefreshToken: "stable-refresh"}, nil)

	refreshed, err := env.svc.Refresh(context.Background(), userID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, before.EncryptedRefreshToken, refreshed.EncryptedRefreshToken)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "access-only", "", nil, models.StatusActive)

	_, err := env.svc.Refresh(context.Background(), userID, conn.ID)
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	// Storage untouched
	stored, err := env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, conn.EncryptedAccessToken, stored.EncryptedAccessToken)
}

func TestRefresh_PlatformRejectionDegrades(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "access", "revoked-refresh", nil, models.StatusActive)

	env.adapter.EXPECT().
		Refresh(gomock.Any(), "revoked-refresh").
		Return(nil, &platform.APIError{Platform: "twitter", Operation: "refresh", StatusCode: http.StatusUnauthorized})

	_, err := env.svc.Refresh(context.Background(), userID, conn.ID)
	assert.ErrorIs(t, err, ErrReauthRequired)

	stored, err := env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsReauth, stored.Status)
	// Credentials stay put so a later reconnect diff is possible
	assert.Equal(t, conn.EncryptedRefreshToken, stored.EncryptedRefreshToken)
}

func TestRefresh_TransportFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "access", "refresh", nil, models.StatusActive)

	transportErr := errors.New("dial tcp: connection refused")
	env.adapter.EXPECT().
		Refresh(gomock.Any(), "refresh").
		Return(nil, transportErr).
		Times(2)

	// An unreachable platform degrades the same way a rejection does
	_, err := env.svc.Refresh(context.Background(), userID, conn.ID)
	assert.ErrorIs(t, err, ErrReauthRequired)

	stored, err := env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsReauth, stored.Status)
	// Credentials stay put so a later reconnect diff is possible
	assert.Equal(t, conn.EncryptedRefreshToken, stored.EncryptedRefreshToken)

	// A repeat failure is idempotent: same outcome, still degraded
	_, err = env.svc.Refresh(context.Background(), userID, conn.ID)
	assert.ErrorIs(t, err, ErrReauthRequired)
	stored, err = env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsReauth, stored.Status)
}

func TestLifecycleRecordsPlatformAPICalls(t *testing.T) {
	spy := &recorderSpy{}
	env := newTestEnvWithRecorder(t, spy)
	userID := uuid.New().String()

	env.adapter.EXPECT().
		ExchangeCode(gomock.Any(), "code").
		Return(&platform.Grant{AccessToken: "a1", RefreshToken: "r1"}, nil)
	conn, err := env.svc.Connect(context.Background(), userID, "twitter", "code")
	require.NoError(t, err)
	assert.Contains(t, spy.apiCalls, "twitter:exchange")

	env.adapter.EXPECT().
		Refresh(gomock.Any(), "r1").
		Return(&platform.Credentials{AccessToken: "a2"}, nil)
	_, err = env.svc.Refresh(context.Background(), userID, conn.ID)
	require.NoError(t, err)
	assert.Contains(t, spy.apiCalls, "twitter:refresh")

	env.adapter.EXPECT().
		Probe(gomock.Any(), gomock.Any()).
		Return(&platform.ProbeResult{OK: true}, nil)
	_, err = env.svc.HealthCheck(context.Background(), userID, conn.ID)
	require.NoError(t, err)
	assert.Contains(t, spy.apiCalls, "twitter:probe")
}

func TestConnect_LimitHitRecordsResolvedPlan(t *testing.T) {
	spy := &recorderSpy{}
	env := newTestEnvWithRecorder(t, spy)

	user := &models.User{Username: "starter", Email: "starter@example.com", PasswordHash: "x", Plan: models.PlanFree}
	require.NoError(t, env.store.CreateUser(user))

	env.seedConnection(t, user.ID, "linkedin", "a", "b", nil, models.StatusActive)
	env.seedConnection(t, user.ID, "youtube", "c", "d", nil, models.StatusActive)

	_, err := env.svc.Connect(context.Background(), user.ID, "twitter", "code")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, user.Plan, spy.limitPlan)
}

func TestRefresh_OwnershipAndExistence(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New().String()
	conn := env.seedConnection(t, owner, "twitter", "access", "refresh", nil, models.StatusActive)

	_, err := env.svc.Refresh(context.Background(), uuid.New().String(), conn.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Refresh(context.Background(), owner, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	conn := env.seedConnection(t, userID, "twitter", "access", "refresh", nil, models.StatusActive)

	require.NoError(t, env.svc.Disconnect(context.Background(), userID, conn.ID))

	_, err := env.store.GetConnectionByID(conn.ID)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	err = env.svc.Disconnect(context.Background(), userID, conn.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnect_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, uuid.New().String(), "twitter", "access", "refresh", nil, models.StatusActive)

	err := env.svc.Disconnect(context.Background(), uuid.New().String(), conn.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// Still there
	_, err = env.store.GetConnectionByID(conn.ID)
	require.NoError(t, err)
}

func TestListConnections_ScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	env.seedConnection(t, userID, "twitter", "a", "b", nil, models.StatusActive)
	env.seedConnection(t, userID, "linkedin", "c", "d", nil, models.StatusActive)
	env.seedConnection(t, uuid.New().String(), "twitter", "e", "f", nil, models.StatusActive)

	conns, err := env.svc.ListConnections(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, conns, 2)
}
