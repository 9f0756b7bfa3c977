package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gestix.app/internal/audit"
	"gestix.app/internal/auth"
)

const pollIntervalHeader = "X-Session-Poll-Interval"

const (
	msgAlreadyLogged   = "Usuário já está logado"
	msgLoginOK         = "Login realizado com sucesso"
	msgEmailRequired   = "Email é obrigatório"
	msgEmailInvalid    = "Email inválido"
	msgPasswordMissing = "Senha é obrigatória"
	msgEmailNotFound   = "Email não encontrado"
	msgBadPassword     = "Senha incorreta"
	msgInactive        = "Sua conta está inativa. Entre em contato com o administrador."
	msgLoginError      = "Erro ao verificar credenciais"
	msgBadRequest      = "Requisição inválida"
	msgSessionInvalid  = "Sessão inválida ou expirada"
	msgLogoutOK        = "Logout realizado com sucesso"
	msgNotLogged       = "Usuário não está logado"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Senha is the field name posted by the legacy login form.
	Senha string `json:"senha"`
}

func (l loginRequest) password() string {
	if l.Password != "" {
		return l.Password
	}
	return l.Senha
}

type loginResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	User    *auth.CurrentUser `json:"user,omitempty"`
}

type sessionUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type checkSessionResponse struct {
	Valid   bool         `json:"valid"`
	User    *sessionUser `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := a.auth.For(w, r)
	if req.ValidateSession(ctx) {
		writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: msgAlreadyLogged, User: req.CurrentUser()})
		return
	}

	creds, err := readCredentials(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Message: msgBadRequest})
		return
	}

	user, err := req.Login(ctx, creds.Email, creds.password())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: msgLoginOK, User: &user})
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, loginResponse{Message: invalidInputMessage(creds)})
	case errors.Is(err, auth.ErrEmailNotFound):
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: msgEmailNotFound})
	case errors.Is(err, auth.ErrIncorrectPassword):
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: msgBadPassword})
	case errors.Is(err, auth.ErrAccountInactive):
		writeJSON(w, http.StatusForbidden, loginResponse{Message: msgInactive})
	default:
		a.log.Error("login failed", zap.Error(err), zap.String("request_id", RequestIDFromContext(ctx)))
		writeJSON(w, http.StatusInternalServerError, loginResponse{Message: msgLoginError})
	}
}

func readCredentials(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var creds loginRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &creds); err != nil {
			return loginRequest{}, err
		}
		return creds, nil
	}
	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	creds.Email = r.PostForm.Get("email")
	creds.Password = r.PostForm.Get("password")
	creds.Senha = r.PostForm.Get("senha")
	return creds, nil
}

func invalidInputMessage(creds loginRequest) string {
	switch {
	case strings.TrimSpace(creds.Email) == "":
		return msgEmailRequired
	case creds.password() == "":
		return msgPasswordMissing
	default:
		return msgEmailInvalid
	}
}

func (a *API) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	req := a.auth.For(w, r)
	w.Header().Set(pollIntervalHeader, strconv.Itoa(int(a.cfg.SessionPollInterval/time.Second)))
	if !req.ValidateSession(r.Context()) {
		writeJSON(w, http.StatusOK, checkSessionResponse{Valid: false, Message: msgSessionInvalid})
		return
	}
	user := req.CurrentUser()
	writeJSON(w, http.StatusOK, checkSessionResponse{
		Valid: true,
		User:  &sessionUser{ID: user.ID, Name: user.Name, Role: user.Role},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	req := a.auth.For(w, r)
	if !req.IsAuthenticated() {
		writeJSON(w, http.StatusOK, logoutResponse{Success: false, Message: msgNotLogged})
		return
	}
	req.Logout(r.Context())
	writeJSON(w, http.StatusOK, logoutResponse{Success: true, Message: msgLogoutOK})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request, req *auth.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "session user missing")
		return
	}
	req.LogActivity(r.Context(), user.ID, audit.TypeDashboardAccess, "Acesso ao dashboard principal", "", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"user":            user,
		"session_timeout": int(a.auth.Timeout().Seconds()),
	})
}
