package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/password"
)

// AccountDeps captures credential-update and recovery-code dependencies.
type AccountDeps struct {
	Observer

	RecoveryCodeCount  int
	RecoveryCodeLength int

	FindUserByID       func(context.Context, string) (User, bool, error)
	VerifyPassword     func(hash, plaintext string) (bool, error)
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	UpdateEmail        func(ctx context.Context, userID, email string) error

	NewID                func() (string, error)
	ReplaceRecoveryCodes func(context.Context, string, []*stores.RecoveryCode) error

	RevokeAll RevokeAllDeps
}

// RunChangePassword replaces the password after checking the current one
// and revokes every other session of the user.
func RunChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string, deps AccountDeps) error {
	deps.defaults()
	if deps.FindUserByID == nil || deps.VerifyPassword == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return fail(FailureNotReady, nil)
	}

	user, err := findActiveUser(ctx, &deps, userID)
	if err != nil {
		return err
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, oldPassword)
	if err != nil || !ok {
		deps.Inc(metrics.PasswordChangeInvalidOld)
		return fail(FailureInvalidCredentials, err)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fail(FailurePasswordPolicy, err)
		}
		return fail(FailureBackend, err)
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fail(FailureBackend, err)
	}

	deps.RevokeAll.Observer = deps.Observer
	if _, err := RunRevokeAll(ctx, user.ID, currentSessionID, RevokeReasonPasswordChanged, deps.RevokeAll); err != nil {
		return err
	}
	deps.Inc(metrics.PasswordChangeSuccess)
	return nil
}

// RunChangeEmail stores the new address and revokes every other session of
// the user. Uniqueness is the provider's concern.
func RunChangeEmail(ctx context.Context, userID, currentSessionID, newEmail string, deps AccountDeps) error {
	deps.defaults()
	if deps.FindUserByID == nil || deps.UpdateEmail == nil {
		return fail(FailureNotReady, nil)
	}

	user, err := findActiveUser(ctx, &deps, userID)
	if err != nil {
		return err
	}
	if err := deps.UpdateEmail(ctx, user.ID, NormalizeEmail(newEmail)); err != nil {
		return fail(FailureBackend, err)
	}

	deps.RevokeAll.Observer = deps.Observer
	if _, err := RunRevokeAll(ctx, user.ID, currentSessionID, RevokeReasonEmailChanged, deps.RevokeAll); err != nil {
		return err
	}
	deps.Inc(metrics.EmailChanged)
	return nil
}

// RunGenerateRecoveryCodes replaces the user's recovery codes and returns
// the plaintext codes. They are not retrievable afterwards.
func RunGenerateRecoveryCodes(ctx context.Context, userID string, deps AccountDeps) ([]string, error) {
	deps.defaults()
	if deps.FindUserByID == nil || deps.NewID == nil || deps.ReplaceRecoveryCodes == nil || deps.RecoveryCodeCount <= 0 {
		return nil, fail(FailureNotReady, nil)
	}

	user, err := findActiveUser(ctx, &deps, userID)
	if err != nil {
		return nil, err
	}

	plain := make([]string, 0, deps.RecoveryCodeCount)
	records := make([]*stores.RecoveryCode, 0, deps.RecoveryCodeCount)
	for len(plain) < deps.RecoveryCodeCount {
		code, err := stores.GenerateRecoveryCode(deps.RecoveryCodeLength)
		if err != nil {
			return nil, fail(FailureBackend, err)
		}
		id, err := deps.NewID()
		if err != nil {
			return nil, fail(FailureBackend, err)
		}
		plain = append(plain, code)
		records = append(records, &stores.RecoveryCode{
			ID:       id,
			UserID:   user.ID,
			CodeHash: stores.HashRecoveryCode(user.ID, code),
		})
	}

	if err := deps.ReplaceRecoveryCodes(ctx, user.ID, records); err != nil {
		return nil, fail(FailureBackend, err)
	}
	deps.Inc(metrics.RecoveryCodesGenerated)
	return plain, nil
}

func findActiveUser(ctx context.Context, deps *AccountDeps, userID string) (User, error) {
	user, found, err := deps.FindUserByID(ctx, userID)
	if err != nil {
		return User{}, fail(FailureBackend, err)
	}
	if !found || user.Disabled {
		return User{}, fail(FailureInvalidCredentials, nil)
	}
	return user, nil
}
