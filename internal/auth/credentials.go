// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/snakepit/internal/logging"
)

// Account is a configured login.
type Account struct {
	Username     string
	PasswordHash string
	Role         string
}

// Authenticator checks credentials against configured accounts and issues
// session tokens.
type Authenticator struct {
	accounts map[string]Account
	tokens   *JWTManager
}

// NewAuthenticator returns an Authenticator over the given accounts.
func NewAuthenticator(accounts []Account, tokens *JWTManager) *Authenticator {
	byName := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		byName[a.Username] = a
	}
	return &Authenticator{accounts: byName, tokens: tokens}
}

// Login verifies a username and password and returns a session token.
func (a *Authenticator) Login(username, password string) (string, error) {
	account, ok := a.accounts[username]
	if !ok {
		// Burn a comparison anyway to keep timing uniform for unknown
		// usernames.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		logging.Warn().Str("username", username).Msg("Failed login attempt")
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.Generate(account.Username, account.Role)
	if err != nil {
		return "", fmt.Errorf("issue session token: %w", err)
	}
	logging.Info().Str("username", username).Str("role", account.Role).Msg("Login succeeded")
	return token, nil
}

// HashPassword bcrypt-hashes a plaintext password for configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
