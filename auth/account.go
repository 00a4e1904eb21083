// Package auth holds the signed-in account and the OAuth flows that sign it in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"polotno-studio/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// TokenTTL is how long a minted session token stays valid.
const TokenTTL = 7 * 24 * time.Hour

var ErrNoSecret = errors.New("JWT_SECRET is not set")

// AppClaims are the claims of a session token.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

func (c *AppClaims) user() core.User {
	u := core.User{
		Subject:   c.Subject,
		Login:     c.Login,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
		Name:      c.Name,
	}
	if c.ExpiresAt != nil {
		u.ExpiresAt = c.ExpiresAt.Time
	}
	return u
}

// Account is the remote account of this daemon. It is signed in by a session
// token and notifies subscribers when that changes, including on expiry.
type Account struct {
	secret []byte
	now    func() time.Time

	mu     sync.Mutex
	claims *AppClaims
	expiry *time.Timer
	subs   map[int]func(bool)
	nextID int
}

func NewAccount(secret string) *Account {
	if secret == "" {
		logrus.Warn("JWT_SECRET is not set. Sign-in will not work.")
	}
	return &Account{
		secret: []byte(secret),
		now:    time.Now,
		subs:   make(map[int]func(bool)),
	}
}

// Mint signs a session token for user.
func (a *Account) Mint(user core.User) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSecret
	}
	now := a.now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse validates a session token.
func (a *Account) Parse(tokenString string) (*AppClaims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (a *Account) activeLocked() bool {
	if a.claims == nil {
		return false
	}
	return a.claims.ExpiresAt == nil || a.now().Before(a.claims.ExpiresAt.Time)
}

func (a *Account) IsSignedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeLocked()
}

func (a *Account) User() (core.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.activeLocked() {
		return core.User{}, false
	}
	return a.claims.user(), true
}

// SignIn accepts a session token minted by this daemon.
func (a *Account) SignIn(ctx context.Context, credential string) error {
	claims, err := a.Parse(credential)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	a.mu.Lock()
	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
	a.claims = claims
	if claims.ExpiresAt != nil {
		a.expiry = time.AfterFunc(claims.ExpiresAt.Sub(a.now()), func() { a.expire(claims) })
	}
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{"subject": claims.Subject, "login": claims.Login}).Info("Signed in")
	a.publish(true)
	return nil
}

func (a *Account) expire(claims *AppClaims) {
	a.mu.Lock()
	if a.claims != claims {
		a.mu.Unlock()
		return
	}
	a.claims = nil
	a.expiry = nil
	a.mu.Unlock()

	logrus.WithField("subject", claims.Subject).Info("Session expired")
	a.publish(false)
}

func (a *Account) SignOut() {
	a.mu.Lock()
	was := a.claims != nil
	a.claims = nil
	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
	a.mu.Unlock()

	if was {
		a.publish(false)
	}
}

// Subscribe registers fn for sign-in changes.
func (a *Account) Subscribe(fn func(signedIn bool)) (cancel func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *Account) publish(signedIn bool) {
	a.mu.Lock()
	fns := make([]func(bool), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(signedIn)
	}
}
