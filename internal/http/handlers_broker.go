package http

import (
	"net/http"

	"gagyebu/internal/services"
)

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	view, err := s.deps.Brokers.Connection(r.Context(), u)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (s *Server) handleSaveConnection(w http.ResponseWriter, r *http.Request) error {
	var in services.ConnectionInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	view, err := s.deps.Brokers.SaveConnection(r.Context(), u, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	if err := s.deps.Brokers.DeleteConnection(r.Context(), u); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	entry, err := s.deps.Brokers.Holdings(r.Context(), u)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	entry, err := s.deps.Brokers.Refresh(r.Context(), u.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	q, err := s.deps.Brokers.Quote(r.Context(), u, r.PathValue("code"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, q)
	return nil
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) error {
	u, err := s.currentUser(r)
	if err != nil {
		return err
	}
	snap, err := s.deps.Brokers.SaveSnapshot(r.Context(), u, services.TriggerManual)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, snap)
	return nil
}
