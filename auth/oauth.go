package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"polotno-studio/config"
	"polotno-studio/core"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const stateCookie = "oauthstate"

// SignInFunc completes sign-in with a freshly minted session token.
type SignInFunc func(ctx context.Context, token string) error

// OIDCClaims are the ID token claims used to build the account user.
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Sub               string `json:"sub"`
}

// Handlers serves the browser side of the OAuth sign-in. OIDC wins when both
// providers are configured.
type Handlers struct {
	account *Account
	signIn  SignInFunc

	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	fetch    func(ctx context.Context, token *oauth2.Token) (core.User, error)

	githubUserURL string
}

func NewHandlers(ctx context.Context, cfg *config.Config, account *Account, signIn SignInFunc) *Handlers {
	h := &Handlers{
		account:       account,
		signIn:        signIn,
		githubUserURL: "https://api.github.com/user",
	}

	switch {
	case cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "":
		logrus.Info("Initializing OIDC authentication provider.")
		h.initOIDC(ctx, cfg)
	case cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "":
		logrus.Info("Initializing GitHub authentication provider.")
		h.initGitHub(cfg)
	default:
		logrus.Warn("No authentication provider configured.")
	}
	return h
}

func (h *Handlers) initGitHub(cfg *config.Config) {
	h.oauth = &oauth2.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
	h.fetch = h.fetchGitHubUser
}

func (h *Handlers) initOIDC(ctx context.Context, cfg *config.Config) {
	if cfg.OIDCClientSecret == "" {
		logrus.Warn("OIDC client secret is not set. OIDC authentication routes will not work.")
		return
	}
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		logrus.Errorf("Failed to create OIDC provider: %s", err.Error())
		return
	}
	h.oauth = &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	h.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	h.fetch = h.fetchOIDCUser
	logrus.Info("OIDC provider initialized")
}

func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "Failed to generate state for login", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
}

func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}
	fail := func(msg string, err error) {
		logrus.WithError(err).Error(msg)
		http.Redirect(w, r, "/?signin=failed", http.StatusTemporaryRedirect)
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.FormValue("state") {
		fail("OAuth state mismatch", err)
		return
	}
	code := r.FormValue("code")
	if code == "" {
		fail("No code in callback", nil)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		fail("Failed to exchange token", err)
		return
	}
	user, err := h.fetch(r.Context(), token)
	if err != nil {
		fail("Failed to get user", err)
		return
	}

	session, err := h.account.Mint(user)
	if err != nil {
		fail("Failed to create JWT", err)
		return
	}
	if err := h.signIn(r.Context(), session); err != nil {
		fail("Failed to sign in", err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (h *Handlers) fetchGitHubUser(ctx context.Context, token *oauth2.Token) (core.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.githubUserURL, nil)
	if err != nil {
		return core.User{}, err
	}
	resp, err := h.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return core.User{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.User{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return core.User{}, fmt.Errorf("github user: status %d", resp.StatusCode)
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil {
		return core.User{}, err
	}
	return core.User{
		Subject:   fmt.Sprintf("github:%d", githubUser.ID),
		Login:     githubUser.Login,
		Email:     githubUser.Email,
		AvatarURL: githubUser.AvatarURL,
		Name:      githubUser.Name,
	}, nil
}

func (h *Handlers) fetchOIDCUser(ctx context.Context, token *oauth2.Token) (core.User, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return core.User{}, fmt.Errorf("no id_token in token response")
	}
	idToken, err := h.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return core.User{}, fmt.Errorf("verify ID token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return core.User{}, err
	}
	user := core.User{
		Subject:   claims.Sub,
		Login:     claims.PreferredUsername,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Name:      claims.Name,
	}
	if user.Login == "" {
		user.Login = user.Email
	}
	return user, nil
}
