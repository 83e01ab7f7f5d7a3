package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/model"
	"github.com/goquote/goquote-go/internal/repository"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory repository.Store. Transactions are serialized and
// roll back by restoring a snapshot.
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	users map[string]model.User
	otps  map[string]model.OTPCode
	fail  map[string]error
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]model.User{},
		otps:  map[string]model.OTPCode{},
		fail:  map[string]error{},
	}
}

func (m *memStore) failOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["CreateUser"]; err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = m.nextID("user")
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["GetUserByEmail"]; err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID, passwordHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["UpdatePassword"]; err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.PasswordHash = passwordHash
	u.IsEmailVerified = true
	u.UpdatedAt = at
	m.users[userID] = u
	return nil
}

func (m *memStore) MarkEmailVerified(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["MarkEmailVerified"]; err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.IsEmailVerified = true
	u.UpdatedAt = at
	m.users[userID] = u
	return nil
}

func (m *memStore) CreateOTP(_ context.Context, code *model.OTPCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["CreateOTP"]; err != nil {
		return err
	}
	if code.ID == "" {
		code.ID = m.nextID("otp")
	}
	m.otps[code.ID] = *code
	return nil
}

func (m *memStore) FindActiveOTP(_ context.Context, userID, codeHash string, purpose model.Purpose, now time.Time) (*model.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []model.OTPCode
	for _, c := range m.otps {
		if c.UserID != userID || c.CodeHash != codeHash || !c.Usable(now) {
			continue
		}
		if purpose != "" && c.Purpose != purpose {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return nil, repository.ErrOTPNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	return &matches[0], nil
}

func (m *memStore) ConsumeOTP(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["ConsumeOTP"]; err != nil {
		return false, err
	}
	c, ok := m.otps[id]
	if !ok || c.ConsumedAt != nil {
		return false, nil
	}
	c.ConsumedAt = &at
	m.otps[id] = c
	return true, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	users, otps := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(users, otps)
			panic(p)
		}
		if err != nil {
			m.restore(users, otps)
		}
	}()
	return fn(ctx, m)
}

func (m *memStore) snapshot() (map[string]model.User, map[string]model.OTPCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make(map[string]model.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	otps := make(map[string]model.OTPCode, len(m.otps))
	for k, v := range m.otps {
		otps[k] = v
	}
	return users, otps
}

func (m *memStore) restore(users map[string]model.User, otps map[string]model.OTPCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
	m.otps = otps
}

func (m *memStore) userByEmail(t *testing.T, email string) model.User {
	t.Helper()
	u, err := m.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return *u
}

func (m *memStore) codesFor(userID string) []model.OTPCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OTPCode
	for _, c := range m.otps {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type mailMock struct {
	mock.Mock
}

func (m *mailMock) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	args := m.Called(ctx, to, fullName, code)
	return args.Error(0)
}

func (m *mailMock) SendPasswordResetCode(ctx context.Context, to, code string) error {
	args := m.Called(ctx, to, code)
	return args.Error(0)
}

// permissiveMailer accepts every send.
func permissiveMailer() *mailMock {
	m := &mailMock{}
	m.On("SendVerificationCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SendPasswordResetCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testJWTSecret = "test-secret-0123456789"

type testEnv struct {
	svc    *AuthService
	store  *memStore
	mail   *mailMock
	clock  *fakeClock
	tokens *crypto.TokenIssuer
}

func newTestEnv(t *testing.T, mail *mailMock, opts Options) *testEnv {
	t.Helper()

	hasher, err := crypto.NewPasswordHasher(crypto.AlgorithmBcrypt, crypto.MinBcryptCost)
	require.NoError(t, err)
	tokens, err := crypto.NewTokenIssuer(testJWTSecret, 0)
	require.NoError(t, err)

	if mail == nil {
		mail = permissiveMailer()
	}
	store := newMemStore()
	clock := newFakeClock()

	svc := NewAuthService(store, hasher, tokens, mail, opts)
	svc.setClock(clock.Now)

	return &testEnv{svc: svc, store: store, mail: mail, clock: clock, tokens: tokens}
}

// signUp registers a user and returns the debug verification code.
func (e *testEnv) signUp(t *testing.T, fullName, email, password string) string {
	t.Helper()
	resp, err := e.svc.SignUp(context.Background(), model.SignUpRequest{
		FullName: fullName,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return resp.DebugOTPCode
}

func (e *testEnv) forgot(t *testing.T, email string) string {
	t.Helper()
	resp, err := e.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: email})
	require.NoError(t, err)
	return resp.DebugOTPCode
}

// otherCode returns a well-formed code that differs from code.
func otherCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}
