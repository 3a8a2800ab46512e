package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pidash/internal/client/api"
	"github.com/iudanet/pidash/internal/client/storage"
	"github.com/iudanet/pidash/internal/client/storage/memory"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

func newDurableStore(t *testing.T, access, refresh string) (*Store, *memory.Storage) {
	t.Helper()
	backend := memory.NewWithCredentials(storage.Credentials{AccessToken: access, RefreshToken: refresh})
	store := NewStore(NewDurablePolicy(backend), nil)
	require.NoError(t, store.Load(context.Background()))
	return store, backend
}

func TestRenewer_Success(t *testing.T) {
	ctx := context.Background()
	store, backend := newDurableStore(t, "old-access", "old-refresh")
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return tokens("new-access", "new-refresh"), nil
		},
	}
	renewer := NewRenewer(client, store, nil)

	token, err := renewer.Renew(ctx)

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, "old-refresh", client.lastRefresh)
	assert.Equal(t, "new-access", store.AccessToken())
	assert.Equal(t, "new-refresh", store.RefreshToken())
	assert.Equal(t, int64(1), renewer.Renewals())

	persisted, err := backend.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", persisted.RefreshToken)
}

func TestRenewer_KeepsRefreshWhenNotRotated(t *testing.T) {
	store, _ := newDurableStore(t, "old-access", "stable-refresh")
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return tokens("new-access", ""), nil
		},
	}

	token, err := NewRenewer(client, store, nil).Renew(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, "stable-refresh", store.RefreshToken())
}

func TestRenewer_DurableWithoutRefreshToken(t *testing.T) {
	store := NewStore(NewDurablePolicy(memory.New()), nil)
	client := &fakeAuthClient{}
	renewer := NewRenewer(client, store, nil)

	token, err := renewer.Renew(context.Background())

	require.NoError(t, err)
	assert.Empty(t, token)
	_, refreshCalls, _, _ := client.calls()
	assert.Equal(t, 0, refreshCalls, "no network exchange without refresh token")
	assert.Equal(t, int64(0), renewer.Renewals())
}

func TestRenewer_CookieModeSendsWithoutBody(t *testing.T) {
	store := NewStore(NewCookiePolicy(nil), nil)
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return tokens("cookie-access", "ignored"), nil
		},
	}

	token, err := NewRenewer(client, store, nil).Renew(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "cookie-access", token)
	assert.Empty(t, client.lastRefresh)
	assert.Empty(t, store.RefreshToken())
}

func TestRenewer_RejectionClearsStore(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(fmt.Sprintf("status %d", code), func(t *testing.T) {
			ctx := context.Background()
			store, backend := newDurableStore(t, "access", "revoked")
			client := &fakeAuthClient{
				refreshFn: func(string) (*pkgapi.TokenResponse, error) {
					return nil, fmt.Errorf("refresh request failed: %w", &api.StatusError{StatusCode: code})
				},
			}

			token, err := NewRenewer(client, store, nil).Renew(ctx)

			require.NoError(t, err)
			assert.Empty(t, token)
			assert.Empty(t, store.AccessToken())
			assert.Empty(t, store.RefreshToken())

			_, err = backend.GetCredentials(ctx)
			assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)

			_, _, _, logout := client.calls()
			assert.Equal(t, 1, logout)
			assert.Equal(t, [2]string{"access", "revoked"}, client.lastLogout)
		})
	}
}

func TestRenewer_RejectionClearsEvenIfLogoutFails(t *testing.T) {
	store, _ := newDurableStore(t, "access", "revoked")
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return nil, &api.StatusError{StatusCode: http.StatusUnauthorized}
		},
		logoutErr: errors.New("connection reset"),
	}

	token, err := NewRenewer(client, store, nil).Renew(context.Background())

	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
}

func TestRenewer_NetworkFailureKeepsStore(t *testing.T) {
	store, _ := newDurableStore(t, "access", "refresh")
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	token, err := NewRenewer(client, store, nil).Renew(context.Background())

	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, "access", store.AccessToken())
	assert.Equal(t, "refresh", store.RefreshToken())
	_, _, _, logout := client.calls()
	assert.Zero(t, logout)
}

func TestRenewer_StorageFailure(t *testing.T) {
	failing := &failingStorage{}
	store := NewStore(NewDurablePolicy(failing), nil)
	require.NoError(t, store.Set(context.Background(), "a", "r"))
	failing.err = errors.New("disk full")

	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return tokens("a2", "r2"), nil
		},
	}

	token, err := NewRenewer(client, store, nil).Renew(context.Background())

	require.Error(t, err)
	assert.Empty(t, token)
}

func TestRenewer_ConcurrentCallsShareOneExchange(t *testing.T) {
	const callers = 10

	store, _ := newDurableStore(t, "expired", "refresh-1")
	release := make(chan struct{})
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			<-release
			return tokens("fresh", "refresh-2"), nil
		},
	}
	renewer := NewRenewer(client, store, nil)

	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([]string, callers)
	)
	started.Add(callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			token, err := renewer.Renew(context.Background())
			assert.NoError(t, err)
			results[i] = token
		}()
	}

	started.Wait()
	// даем всем вызывающим встать в ожидание общего вызова
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	_, refreshCalls, _, _ := client.calls()
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, int64(1), renewer.Renewals())
	for _, token := range results {
		assert.Equal(t, "fresh", token)
	}
	assert.Equal(t, "refresh-2", store.RefreshToken())
}

func TestRenewer_SequentialCallsStartNewExchange(t *testing.T) {
	store, _ := newDurableStore(t, "a0", "r0")
	n := 0
	client := &fakeAuthClient{
		refreshFn: func(refresh string) (*pkgapi.TokenResponse, error) {
			n++
			return tokens(fmt.Sprintf("a%d", n), fmt.Sprintf("r%d", n)), nil
		},
	}
	renewer := NewRenewer(client, store, nil)

	first, err := renewer.Renew(context.Background())
	require.NoError(t, err)
	second, err := renewer.Renew(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a1", first)
	assert.Equal(t, "a2", second)
	assert.Equal(t, "r1", client.lastRefresh, "second exchange uses the rotated refresh token")
	assert.Equal(t, int64(2), renewer.Renewals())
}

func TestRenewer_CallerCancellationDoesNotFailSharedCall(t *testing.T) {
	store, _ := newDurableStore(t, "expired", "refresh")
	client := &fakeAuthClient{
		refreshFn: func(string) (*pkgapi.TokenResponse, error) {
			return tokens("fresh", "r2"), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := NewRenewer(client, store, nil).Renew(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}
