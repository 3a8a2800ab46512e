package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/iudanet/pidash/internal/client/storage"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

// fakeAuthClient implements AuthClient for testing
type fakeAuthClient struct {
	loginFn      func(req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
	refreshFn    func(refreshToken string) (*pkgapi.TokenResponse, error)
	checkErr     error
	logoutErr    error
	lastRefresh  string
	lastLogout   [2]string
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	checkCalls   int
	logoutCalls  int
}

func (f *fakeAuthClient) Login(_ context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	if f.loginFn == nil {
		return nil, errors.New("login not configured")
	}
	return f.loginFn(req)
}

func (f *fakeAuthClient) Refresh(_ context.Context, refreshToken string) (*pkgapi.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.lastRefresh = refreshToken
	f.mu.Unlock()
	if f.refreshFn == nil {
		return nil, errors.New("refresh not configured")
	}
	return f.refreshFn(refreshToken)
}

func (f *fakeAuthClient) Logout(_ context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	f.logoutCalls++
	f.lastLogout = [2]string{accessToken, refreshToken}
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAuthClient) CheckAuth(_ context.Context, _ string) error {
	f.mu.Lock()
	f.checkCalls++
	f.mu.Unlock()
	return f.checkErr
}

func (f *fakeAuthClient) calls() (login, refresh, check, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls, f.checkCalls, f.logoutCalls
}

// failingStorage returns errors from every operation
type failingStorage struct {
	err error
}

func (f *failingStorage) SaveCredentials(context.Context, storage.Credentials) error { return f.err }

func (f *failingStorage) GetCredentials(context.Context) (storage.Credentials, error) {
	return storage.Credentials{}, f.err
}

func (f *failingStorage) DeleteCredentials(context.Context) error { return f.err }

func tokens(access, refresh string) *pkgapi.TokenResponse {
	return &pkgapi.TokenResponse{AccessToken: access, RefreshToken: refresh, ExpiresIn: 900}
}
