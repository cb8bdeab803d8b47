package api

import (
	"net/http"
	"strings"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
)

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair. It takes a JSON body or the
// OAuth2 password form (username, password).
//
//	POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			httputil.BadRequest(w, "invalid form: "+err.Error())
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if !decode(w, r, &req) {
		return
	}

	email := req.Email
	if email == "" {
		email = req.Username
	}
	if email == "" || req.Password == "" {
		httputil.BadRequest(w, "email and password are required")
		return
	}

	pair, err := h.auth.Login(r.Context(), email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, pair)
}

// Refresh issues a new access token from a refresh token.
//
//	POST /auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.BadRequest(w, "refresh_token is required")
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, pair)
}

// Me returns the signed-in user.
//
//	GET /api/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		httputil.Unauthorized(w, auth.ErrInvalidToken.Error())
		return
	}
	httputil.OK(w, u)
}

// Register creates a staff account. Super admins only.
//
//	POST /api/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	u, err := h.auth.Register(r.Context(), auth.UserFromContext(r.Context()), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, u)
}
