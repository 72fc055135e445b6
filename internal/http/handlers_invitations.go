package http

import (
	"net/http"

	"gagyebu/internal/services"
)

type invitationRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) error {
	var in invitationRequest
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	inv, err := s.deps.Invitations.Create(r.Context(), viewerOf(r), in.Email)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, inv)
	return nil
}

func (s *Server) handleSentInvitations(w http.ResponseWriter, r *http.Request) error {
	invs, err := s.deps.Invitations.Sent(r.Context(), viewerOf(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, invs)
	return nil
}

func (s *Server) handleReceivedInvitations(w http.ResponseWriter, r *http.Request) error {
	invs, err := s.deps.Invitations.Received(r.Context(), viewerOf(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, invs)
	return nil
}

func (s *Server) handleGetInvitation(w http.ResponseWriter, r *http.Request) error {
	inv, err := s.deps.Invitations.GetByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, inv)
	return nil
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) error {
	var profile services.AcceptProfile
	if err := decodeOptionalJSON(w, r, &profile); err != nil {
		return err
	}
	u, err := s.deps.Invitations.Accept(r.Context(), viewerOf(r), r.PathValue("code"), profile)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, u)
	return nil
}

func (s *Server) handleRejectInvitation(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Invitations.Reject(r.Context(), viewerOf(r), r.PathValue("code")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
