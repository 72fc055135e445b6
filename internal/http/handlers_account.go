package http

import (
	"errors"
	"net/http"
	"time"

	"gagyebu/internal/auth"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/repository"
	"gagyebu/internal/services"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Account   core.Account `json:"account"`
	User      core.User    `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	acc, err := s.deps.Accounts.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	s.logger.InfoContext(r.Context(), "Account registered", applog.FieldAccountID, acc.ID)
	return s.startSession(w, r, acc, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	acc, err := s.deps.Accounts.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	return s.startSession(w, r, acc, http.StatusOK)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, acc core.Account, status int) error {
	u, err := s.deps.Household.EnsureUser(r.Context(), acc.ID, acc.Email)
	if err != nil {
		return err
	}
	token, expires, err := s.deps.JWT.Generate(acc)
	if err != nil {
		return err
	}
	writeJSON(w, status, sessionResponse{Token: token, ExpiresAt: expires, Account: acc, User: u})
	return nil
}

// currentUser resolves the authenticated account to its household user,
// creating the user on first access.
func (s *Server) currentUser(r *http.Request) (core.User, error) {
	return s.deps.Household.EnsureUser(r.Context(), auth.AccountID(r.Context()), auth.Email(r.Context()))
}

func viewerOf(r *http.Request) services.Viewer {
	return services.Viewer{AccountID: auth.AccountID(r.Context()), Email: auth.Email(r.Context())}
}

type meResponse struct {
	User    core.User  `json:"user"`
	Partner *core.User `json:"partner,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	resp := meResponse{User: u}
	if u.HasPartner() {
		p, err := s.deps.Repo.Users().Get(r.Context(), u.PartnerID)
		switch {
		case err == nil:
			resp.Partner = &p
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) error {
	var in services.ProfileUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	updated, err := s.deps.Household.UpdateProfile(r.Context(), u, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, updated)
	return nil
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	if err := s.deps.Household.Unlink(r.Context(), u); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) error {
	month, err := parseMonth(r, s.deps.Now())
	if err != nil {
		return err
	}
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	d, err := s.deps.Household.Dashboard(r.Context(), u, month)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}
