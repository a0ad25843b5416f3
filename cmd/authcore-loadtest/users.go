package main

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore"
)

// userDirectory is an in-memory UserProvider. Every seeded account shares
// one password hash so seeding does not pay for a KDF per user.
type userDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*authcore.UserRecord
	byEmail map[string]string
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		byID:    map[string]*authcore.UserRecord{},
		byEmail: map[string]string{},
	}
}

func (d *userDirectory) add(u authcore.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.UserID] = &u
	d.byEmail[u.Email] = u.UserID
}

func (d *userDirectory) FindByEmail(_ context.Context, email string) (authcore.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return *d.byID[id], nil
}

func (d *userDirectory) FindByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return *u, nil
}

func (d *userDirectory) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (d *userDirectory) UpdateEmail(_ context.Context, userID, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	delete(d.byEmail, u.Email)
	u.Email = email
	d.byEmail[email] = userID
	return nil
}

func (d *userDirectory) GetTOTPSecret(context.Context, string) (*authcore.TOTPRecord, error) {
	return nil, nil
}

func (d *userDirectory) UpdateTOTPLastUsedCounter(context.Context, string, int64) error {
	return nil
}
