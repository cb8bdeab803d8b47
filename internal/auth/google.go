package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

const (
	stateCookie = "oauth_state"
	userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleUserInfo is the subset of the Google profile we read.
type GoogleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleSignIn lets existing active users sign in with their Google account.
// It never creates users.
type GoogleSignIn struct {
	manager     *Manager
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogleSignIn returns nil when Google credentials are not configured.
func NewGoogleSignIn(cfg config.AuthConfig, m *Manager) *GoogleSignIn {
	if !cfg.GoogleEnabled() {
		return nil
	}
	return &GoogleSignIn{
		manager: m,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HandleLogin redirects to Google's consent screen.
func (g *GoogleSignIn) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		httputil.InternalError(w, fmt.Errorf("generate state: %w", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

// HandleCallback exchanges the code and answers with a token pair for the
// matching active user.
func (g *GoogleSignIn) HandleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || r.URL.Query().Get("state") != c.Value {
		httputil.BadRequest(w, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if e := r.URL.Query().Get("error"); e != "" {
		httputil.BadRequest(w, "google sign-in failed: "+e)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	tok, err := g.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("google code exchange failed", "error", err)
		httputil.Unauthorized(w, "google sign-in failed")
		return
	}
	info, err := g.userInfo(ctx, tok)
	if err != nil {
		logger.Warn("google userinfo failed", "error", err)
		httputil.Unauthorized(w, "google sign-in failed")
		return
	}
	if !info.VerifiedEmail {
		httputil.Unauthorized(w, "google account email is not verified")
		return
	}

	u, err := g.manager.users.ByEmail(ctx, strings.ToLower(info.Email))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if u == nil || !u.IsActive {
		logger.Warn("google sign-in for unknown or inactive user", "email", info.Email)
		httputil.Forbidden(w, "no active account for this email")
		return
	}
	pair, err := g.manager.Issue(u)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("google sign-in", "email", u.Email)
	httputil.OK(w, pair)
}

func (g *GoogleSignIn) userInfo(ctx context.Context, tok *oauth2.Token) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: HTTP %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse user info: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("google profile has no email")
	}
	return &info, nil
}
