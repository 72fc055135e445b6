package http

import (
	"net/http"
	"strings"

	"gagyebu/internal/core"
	"gagyebu/internal/store"
)

func (s *Server) recordRoutes() {
	registerRecords(s, core.KindSalary, func(st *store.State) *store.Collection[core.Salary] { return st.Salaries })
	registerRecords(s, core.KindFixedExpense, func(st *store.State) *store.Collection[core.FixedExpense] { return st.FixedExpenses })
	registerRecords(s, core.KindLivingExpense, func(st *store.State) *store.Collection[core.LivingExpense] { return st.LivingExpenses })
	registerRecords(s, core.KindAllowance, func(st *store.State) *store.Collection[core.Allowance] { return st.Allowances })
	registerRecords(s, core.KindLedger, func(st *store.State) *store.Collection[core.LedgerTransaction] { return st.Ledger })
	registerRecords(s, core.KindSavings, func(st *store.State) *store.Collection[core.Savings] { return st.Savings })
	registerRecords(s, core.KindInvestment, func(st *store.State) *store.Collection[core.Investment] { return st.Investments })
	registerRecords(s, core.KindGoal, func(st *store.State) *store.Collection[core.Goal] { return st.Goals })
}

// registerRecords mounts list, create, update and delete for one kind.
func registerRecords[T core.Record[T]](s *Server, kind core.Kind, pick func(*store.State) *store.Collection[T]) {
	base := "/api/" + string(kind)

	collection := func(r *http.Request) (*store.Collection[T], error) {
		u, err := s.currentUser(r)
		if err != nil {
			return nil, err
		}
		st, err := s.deps.Household.State(r.Context(), u)
		if err != nil {
			return nil, err
		}
		return pick(st), nil
	}

	s.authed("GET "+base, func(w http.ResponseWriter, r *http.Request) error {
		var month *core.Month
		if strings.TrimSpace(r.URL.Query().Get("month")) != "" {
			m, err := parseMonth(r, s.deps.Now())
			if err != nil {
				return err
			}
			month = &m
		}
		c, err := collection(r)
		if err != nil {
			return err
		}
		items := c.All()
		out := make([]T, 0, len(items))
		for _, rec := range items {
			// Undated kinds apply to every month.
			if d := core.FactsOf(rec).Date; month != nil && !d.IsZero() && !month.Contains(d) {
				continue
			}
			out = append(out, rec)
		}
		writeJSON(w, http.StatusOK, out)
		return nil
	})

	s.authed("POST "+base, func(w http.ResponseWriter, r *http.Request) error {
		var rec T
		if err := decodeJSON(w, r, &rec); err != nil {
			return err
		}
		c, err := collection(r)
		if err != nil {
			return err
		}
		saved, err := c.Add(r.Context(), rec)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, saved)
		return nil
	})

	s.authed("PUT "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) error {
		var rec T
		if err := decodeJSON(w, r, &rec); err != nil {
			return err
		}
		c, err := collection(r)
		if err != nil {
			return err
		}
		saved, err := c.Update(r.Context(), rec.WithMeta(core.Meta{ID: r.PathValue("id")}))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, saved)
		return nil
	})

	s.authed("DELETE "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) error {
		c, err := collection(r)
		if err != nil {
			return err
		}
		if err := c.Remove(r.Context(), r.PathValue("id")); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}
