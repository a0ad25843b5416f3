package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*UserRecord
	totp  map[string]*TOTPRecord
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		users: map[string]*UserRecord{},
		totp:  map[string]*TOTPRecord{},
	}
}

func (m *memoryUsers) add(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	m.users[u.UserID] = &u
}

func (m *memoryUsers) setTOTP(userID string, rec TOTPRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totp[userID] = &rec
}

func (m *memoryUsers) passwordHash(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].PasswordHash
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *u, nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memoryUsers) UpdateEmail(_ context.Context, userID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Email = strings.ToLower(email)
	return nil
}

func (m *memoryUsers) GetTOTPSecret(_ context.Context, userID string) (*TOTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.totp[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *memoryUsers) UpdateTOTPLastUsedCounter(_ context.Context, userID string, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.LastUsedCounter = counter
	return nil
}

type mailbox struct {
	mu     sync.Mutex
	tokens map[string][]string
}

func (m *mailbox) send(_ context.Context, email, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string][]string{}
	}
	m.tokens[email] = append(m.tokens[email], token)
	return nil
}

func (m *mailbox) last(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.tokens[email]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventName())
	}
	return out
}

func (s *recordingSink) has(name string) bool {
	for _, n := range s.names() {
		if n == name {
			return true
		}
	}
	return false
}

type testHarness struct {
	engine *Engine
	users  *memoryUsers
	mail   *mailbox
	sink   *recordingSink
	redis  *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	cfg.Password.LegacyBcryptCost = 4
	cfg.Lockout.Threshold = 3
	cfg.Audit.Async = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newHarness(t testing.TB, mutate func(*Config)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		users: newMemoryUsers(),
		mail:  &mailbox{},
		sink:  &recordingSink{},
		redis: rdb,
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(h.users).
		WithMailer(ResetTokenMailerFunc(h.mail.send)).
		WithEventSink(h.sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

func (h *testHarness) addUser(t testing.TB, id, email string, twoFactor bool) {
	t.Helper()
	hasher, err := password.NewArgon2(h.engine.config.Password.argon2())
	if err != nil {
		t.Fatalf("argon2 setup failed: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h.users.add(UserRecord{
		UserID:           id,
		Email:            email,
		PasswordHash:     hash,
		TwoFactorEnabled: twoFactor,
		Roles:            []string{"member"},
	})
}

func (h *testHarness) signIn(t testing.TB, email string) *SignInResult {
	t.Helper()
	res, err := h.engine.SignIn(context.Background(), SignInRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	return res
}

func TestSignInIssuesValidatableTokens(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	res := h.signIn(t, "  Alice@Example.com ")
	if res.TwoFactorPending {
		t.Fatal("did not expect two-factor pending")
	}
	if res.UserID != "u1" || res.SessionID == "" || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("incomplete sign-in result: %+v", res)
	}
	if !res.SessionExpiresAt.After(res.AccessExpiresAt) {
		t.Fatalf("session should outlive access token: session=%v access=%v", res.SessionExpiresAt, res.AccessExpiresAt)
	}

	id, err := h.engine.ValidateAccessToken(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if id.UserID != "u1" || id.SessionID != res.SessionID {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if len(id.Roles) != 1 || id.Roles[0] != "member" {
		t.Fatalf("unexpected roles: %v", id.Roles)
	}

	pair, err := h.engine.RefreshToken(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.SessionID != res.SessionID {
		t.Fatalf("refresh moved session: %s != %s", pair.SessionID, res.SessionID)
	}
	if pair.RefreshToken == res.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}
	if _, err := h.engine.RefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}

	if !h.sink.has("user_signed_in") || !h.sink.has("refresh_token_rotated") {
		t.Fatalf("missing events: %v", h.sink.names())
	}
}

func TestSignInRememberMeExtendsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)

	short := h.signIn(t, "alice@example.com")
	long, err := h.engine.SignIn(context.Background(), SignInRequest{
		Email:      "alice@example.com",
		Password:   testPassword,
		RememberMe: true,
	})
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if !long.SessionExpiresAt.After(short.SessionExpiresAt.Add(24 * time.Hour)) {
		t.Fatalf("remember-me session too short: %v vs %v", long.SessionExpiresAt, short.SessionExpiresAt)
	}
}

func TestSignInFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	_, errWrong := h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: "wrong-password-1"})
	_, errUnknown := h.engine.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "wrong-password-1"})

	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("messages differ: %q vs %q", errWrong, errUnknown)
	}
}

func TestDisabledAccountCannotSignIn(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	h.users.users["u1"].Disabled = true

	_, err := h.engine.SignIn(context.Background(), SignInRequest{Email: "alice@example.com", Password: testPassword})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLockoutIsMaskedAndUnlockable(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: "wrong-password-1"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
		if errors.Is(err, ErrAccountLockedOut) {
			t.Fatalf("attempt %d: the locking attempt must not reveal the lock", i)
		}
	}

	locked, err := h.engine.IsLockedOut(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("IsLockedOut failed: %v", err)
	}
	if !locked {
		t.Fatal("expected account to be locked")
	}

	_, err = h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: testPassword})
	if !errors.Is(err, ErrAccountLockedOut) || !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected masked lockout, got %v", err)
	}
	if err.Error() != ErrInvalidCredentials.Error() {
		t.Fatalf("lockout message leaks: %q", err.Error())
	}
	if !h.sink.has("account_locked_out") {
		t.Fatalf("missing lockout event: %v", h.sink.names())
	}

	if err := h.engine.UnlockAccount(ctx, "alice@example.com"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	h.signIn(t, "alice@example.com")
}

func TestSuccessfulSignInClearsFailureCount(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	for round := 0; round < 3; round++ {
		for i := 0; i < 2; i++ {
			_, _ = h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: "wrong-password-1"})
		}
		h.signIn(t, "alice@example.com")
	}
	if locked, _ := h.engine.IsLockedOut(ctx, "alice@example.com"); locked {
		t.Fatal("failures separated by successes must not lock")
	}
}

func enrollTOTP(t *testing.T, h *testHarness, userID string) []byte {
	t.Helper()
	prov, err := h.engine.ProvisionTOTP("authcore", userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	h.users.setTOTP(userID, TOTPRecord{Secret: prov.Secret, Enabled: true})
	return prov.Secret
}

func currentCode(t *testing.T, secret []byte) string {
	t.Helper()
	code, err := hotpCode(secret, time.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotp failed: %v", err)
	}
	return code
}

// wrongCode returns a code outside every step the verifier would accept.
func wrongCode(t *testing.T, secret []byte) string {
	t.Helper()
	step := time.Now().Unix() / 30
	valid := map[string]bool{}
	for s := step - 2; s <= step+2; s++ {
		code, err := hotpCode(secret, s, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotp failed: %v", err)
		}
		valid[code] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func TestTwoFactorSignInWithTOTP(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", true)
	secret := enrollTOTP(t, h, "u1")
	ctx := context.Background()

	first := h.signIn(t, "alice@example.com")
	if !first.TwoFactorPending || first.PendingSessionID == "" {
		t.Fatalf("expected pending sign-in, got %+v", first)
	}
	if first.AccessToken != "" || first.RefreshToken != "" {
		t.Fatal("pending sign-in must not carry tokens")
	}

	_, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: first.PendingSessionID, Code: wrongCode(t, secret)})
	if !errors.Is(err, ErrTwoFactorFailed) {
		t.Fatalf("expected ErrTwoFactorFailed, got %v", err)
	}

	code := currentCode(t, secret)
	done, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: first.PendingSessionID, Code: code})
	if err != nil {
		t.Fatalf("complete two-factor failed: %v", err)
	}
	if done.TwoFactorPending || done.AccessToken == "" || done.SessionID == "" {
		t.Fatalf("expected issued session, got %+v", done)
	}
	if _, err := h.engine.ValidateAccessToken(ctx, done.AccessToken); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if _, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: first.PendingSessionID, Code: code}); !errors.Is(err, ErrTwoFactorExpired) {
		t.Fatalf("expected spent pending sign-in, got %v", err)
	}

	second := h.signIn(t, "alice@example.com")
	if _, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: second.PendingSessionID, Code: code}); !errors.Is(err, ErrTwoFactorFailed) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
}

func TestTwoFactorWrongCodesKeepPendingRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", true)
	secret := enrollTOTP(t, h, "u1")
	ctx := context.Background()

	if DefaultConfig().TwoFactor.MaxPendingAttempts != 0 {
		t.Fatal("pending sign-ins must not be capped by default")
	}

	res := h.signIn(t, "alice@example.com")
	for i := 0; i < 8; i++ {
		_, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: res.PendingSessionID, Code: wrongCode(t, secret)})
		if !errors.Is(err, ErrTwoFactorFailed) {
			t.Fatalf("attempt %d: expected ErrTwoFactorFailed, got %v", i+1, err)
		}
	}

	done, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: res.PendingSessionID, Code: currentCode(t, secret)})
	if err != nil {
		t.Fatalf("correct code after wrong ones failed: %v", err)
	}
	if done.AccessToken == "" {
		t.Fatalf("expected issued session, got %+v", done)
	}
}

func TestTwoFactorPendingAttemptCapIsOptIn(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.TwoFactor.MaxPendingAttempts = 2
	})
	h.addUser(t, "u1", "alice@example.com", true)
	secret := enrollTOTP(t, h, "u1")
	ctx := context.Background()

	res := h.signIn(t, "alice@example.com")
	for i := 0; i < 2; i++ {
		if _, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: res.PendingSessionID, Code: wrongCode(t, secret)}); !errors.Is(err, ErrTwoFactorFailed) {
			t.Fatalf("attempt %d: expected ErrTwoFactorFailed, got %v", i+1, err)
		}
	}

	_, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: res.PendingSessionID, Code: currentCode(t, secret)})
	if !errors.Is(err, ErrTwoFactorExpired) {
		t.Fatalf("expected capped pending sign-in to be gone, got %v", err)
	}
}

func TestTwoFactorUnknownPending(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.CompleteTwoFactor(context.Background(), TwoFactorRequest{PendingSessionID: "missing", Code: "123456"})
	if !errors.Is(err, ErrTwoFactorExpired) {
		t.Fatalf("expected ErrTwoFactorExpired, got %v", err)
	}
}

func TestRecoveryCodeIsSingleUse(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", true)
	enrollTOTP(t, h, "u1")
	ctx := context.Background()

	codes, err := h.engine.GenerateRecoveryCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}

	pending := h.signIn(t, "alice@example.com")
	if _, err := h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{
		PendingSessionID: pending.PendingSessionID,
		RecoveryCode:     strings.ToLower(codes[0]),
	}); err != nil {
		t.Fatalf("recovery code rejected: %v", err)
	}

	remaining, err := h.engine.RemainingRecoveryCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("expected 9 remaining codes, got %d", remaining)
	}
	if !h.sink.has("recovery_code_used") {
		t.Fatalf("missing recovery event: %v", h.sink.names())
	}

	again := h.signIn(t, "alice@example.com")
	_, err = h.engine.CompleteTwoFactor(ctx, TwoFactorRequest{PendingSessionID: again.PendingSessionID, RecoveryCode: codes[0]})
	if !errors.Is(err, ErrTwoFactorFailed) {
		t.Fatalf("expected spent code to fail, got %v", err)
	}
}

func TestRefreshGraceReissueThenTheft(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	res := h.signIn(t, "alice@example.com")
	if _, err := h.engine.RefreshToken(ctx, res.RefreshToken); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	reissued, err := h.engine.RefreshToken(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("grace reissue failed: %v", err)
	}
	if reissued.SessionID != res.SessionID {
		t.Fatal("grace reissue must stay on the same session")
	}

	_, err = h.engine.RefreshToken(ctx, res.RefreshToken)
	if !errors.Is(err, ErrRefreshTheftDetected) {
		t.Fatalf("expected theft on second replay, got %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, reissued.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected chain revoked after theft, got %v", err)
	}
}

func TestRefreshTheftRevokesEverySession(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	stolen := h.signIn(t, "alice@example.com")
	other := h.signIn(t, "alice@example.com")

	if _, err := h.engine.RefreshToken(ctx, stolen.RefreshToken); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	h.engine.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := h.engine.RefreshToken(ctx, stolen.RefreshToken)
	if !errors.Is(err, ErrRefreshTheftDetected) || !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected masked theft, got %v", err)
	}
	if err.Error() != ErrRefreshInvalid.Error() {
		t.Fatalf("theft message leaks: %q", err.Error())
	}

	if _, err := h.engine.ValidateAccessToken(ctx, other.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected other session revoked, got %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, other.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected other chain revoked, got %v", err)
	}
	if !h.sink.has("refresh_token_theft_detected") {
		t.Fatalf("missing theft event: %v", h.sink.names())
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	h := newHarness(t, nil)

	for _, tok := range []string{"", "not-a-token", "aaaa.bbbb"} {
		if _, err := h.engine.RefreshToken(context.Background(), tok); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("token %q: expected ErrRefreshInvalid, got %v", tok, err)
		}
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)

	res := h.signIn(t, "alice@example.com")
	tampered := res.AccessToken[:len(res.AccessToken)-2] + "xx"
	if _, err := h.engine.ValidateAccessToken(context.Background(), tampered); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestSkipValidationLookupTrustsSignature(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Session.SkipValidationLookup = true
	})
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	res := h.signIn(t, "alice@example.com")
	if err := h.engine.RevokeSession(ctx, res.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := h.engine.ValidateAccessToken(ctx, res.AccessToken); err != nil {
		t.Fatalf("expected signature-only validation to pass, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	if err := h.engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email must look successful, got %v", err)
	}
	if h.mail.last("nobody@example.com") != "" {
		t.Fatal("no mail should go to unknown addresses")
	}

	session := h.signIn(t, "alice@example.com")

	if err := h.engine.RequestPasswordReset(ctx, "Alice@Example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	token := h.mail.last("alice@example.com")
	if token == "" {
		t.Fatal("expected reset token to be mailed")
	}

	if err := h.engine.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	const newPassword = "a-much-better-password"
	if err := h.engine.ConfirmPasswordReset(ctx, token, newPassword); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := h.engine.ConfirmPasswordReset(ctx, token, newPassword); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected spent token, got %v", err)
	}

	if _, err := h.engine.ValidateAccessToken(ctx, session.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected sessions revoked after reset, got %v", err)
	}
	if _, err := h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: newPassword}); err != nil {
		t.Fatalf("sign in with new password failed: %v", err)
	}
	if !h.sink.has("password_reset_completed") {
		t.Fatalf("missing reset event: %v", h.sink.names())
	}
}

func TestPasswordResetNewerTokenReplacesOlder(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	older := h.mail.last("alice@example.com")
	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	newer := h.mail.last("alice@example.com")
	if older == newer {
		t.Fatal("expected a fresh token")
	}

	if err := h.engine.ConfirmPasswordReset(ctx, older, "a-much-better-password"); err == nil {
		t.Fatal("expected superseded token to fail")
	}
	if err := h.engine.ConfirmPasswordReset(ctx, newer, "a-much-better-password"); err != nil {
		t.Fatalf("newest token rejected: %v", err)
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	current := h.signIn(t, "alice@example.com")
	other := h.signIn(t, "alice@example.com")

	err := h.engine.ChangePassword(ctx, "u1", current.SessionID, "wrong-password-1", "a-much-better-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got %v", err)
	}

	before := h.users.passwordHash("u1")
	if err := h.engine.ChangePassword(ctx, "u1", current.SessionID, testPassword, "a-much-better-password"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if h.users.passwordHash("u1") == before {
		t.Fatal("password hash not updated")
	}

	if _, err := h.engine.ValidateAccessToken(ctx, current.AccessToken); err != nil {
		t.Fatalf("current session should survive: %v", err)
	}
	if _, err := h.engine.ValidateAccessToken(ctx, other.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("other session should be revoked, got %v", err)
	}
}

func TestChangeEmailRevokesOtherSessions(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	current := h.signIn(t, "alice@example.com")
	other := h.signIn(t, "alice@example.com")

	if err := h.engine.ChangeEmail(ctx, "u1", current.SessionID, "alice@new.example.com"); err != nil {
		t.Fatalf("change email failed: %v", err)
	}
	if _, err := h.engine.ValidateAccessToken(ctx, other.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("other session should be revoked, got %v", err)
	}
	h.signIn(t, "alice@new.example.com")
}

func TestSessionListingAndRevocation(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	a := h.signIn(t, "alice@example.com")
	b := h.signIn(t, "alice@example.com")
	c := h.signIn(t, "alice@example.com")

	if err := h.engine.RevokeSession(ctx, b.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := h.engine.RevokeSession(ctx, b.SessionID); err != nil {
		t.Fatalf("repeat revoke should succeed, got %v", err)
	}
	if err := h.engine.RevokeSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, b.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked chain, got %v", err)
	}

	list, err := h.engine.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(list))
	}
	ids := map[string]bool{}
	for _, s := range list {
		ids[s.ID] = true
	}
	if !ids[a.SessionID] || !ids[c.SessionID] {
		t.Fatalf("unexpected sessions: %v", ids)
	}

	if err := h.engine.RevokeAllSessions(ctx, "u1", "admin"); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	list, err = h.engine.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(list))
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	cfg := testConfig()

	if _, err := New().WithConfig(cfg).WithMailer(ResetTokenMailerFunc((&mailbox{}).send)).Build(); err == nil {
		t.Fatal("expected error without user provider")
	}
	if _, err := New().WithConfig(cfg).WithUserProvider(newMemoryUsers()).Build(); err == nil {
		t.Fatal("expected error without mailer")
	}

	bad := cfg
	bad.JWT.PrivateKey = nil
	if _, err := New().WithConfig(bad).Build(); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserProvider(newMemoryUsers()).
		WithMailer(ResetTokenMailerFunc((&mailbox{}).send))
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestZeroEngineIsNotReady(t *testing.T) {
	var e Engine
	ctx := context.Background()

	if _, err := e.SignIn(ctx, SignInRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.RefreshToken(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.RequestPasswordReset(ctx, "a@example.com"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestMetricsSnapshotCountsFlows(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "u1", "alice@example.com", false)
	ctx := context.Background()

	res := h.signIn(t, "alice@example.com")
	_, _ = h.engine.SignIn(ctx, SignInRequest{Email: "alice@example.com", Password: "wrong-password-1"})
	if _, err := h.engine.RefreshToken(ctx, res.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricSignInSuccess] != 1 {
		t.Fatalf("expected 1 sign-in success, got %d", snap.Counters[MetricSignInSuccess])
	}
	if snap.Counters[MetricSignInFailure] != 1 {
		t.Fatalf("expected 1 sign-in failure, got %d", snap.Counters[MetricSignInFailure])
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected 1 refresh success, got %d", snap.Counters[MetricRefreshSuccess])
	}

	var observed uint64
	for _, n := range snap.Histograms[MetricSignInLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected 2 sign-in latency samples, got %d", observed)
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Session.SkipValidationLookup = true
	})

	r := h.engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" || r.Argon2.Memory != 8*1024 {
		t.Fatalf("unexpected report %+v", r)
	}
	if !r.LockoutActive || !r.LegacyBcryptAccepted || !r.RecoveryCodesActive {
		t.Fatalf("expected lockout, bcrypt and recovery codes active: %+v", r)
	}
	if r.SessionLookupOnValidate {
		t.Fatal("session lookup must be reported off")
	}
	if r.AuditMayDropEvents {
		t.Fatal("synchronous audit cannot drop events")
	}

	var nilEngine *Engine
	if nilEngine.SecurityReport() != (SecurityReport{}) {
		t.Fatal("nil engine must report zero value")
	}
}
