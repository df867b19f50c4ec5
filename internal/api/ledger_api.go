package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// ─── Ingestion (/api/events) ────────────────────────────────────────────────

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}

	res, err := s.replica.Submit(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	switch res.Status {
	case domain.AcceptAccepted:
		status = http.StatusCreated
	case domain.AcceptRejected:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// ─── Sync ───────────────────────────────────────────────────────────────────

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": s.replica.Channels(),
	})
}

func (s *Server) handleEventsSince(w http.ResponseWriter, r *http.Request) {
	cursor, err := queryInt(r, "cursor", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	events, err := s.replica.EventsSince(r.Context(), chi.URLParam(r, "channel"), cursor, int(limit))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.StoredEvent{}
	}
	next := cursor
	if n := len(events); n > 0 {
		next = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, EventsPage{Events: events, Cursor: next})
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{
		"clock": s.replica.Clock(),
	})
}

// handleNextClock reserves a clock for an event a client is about to sign,
// so concurrent emitters against one node never share a clock.
func (s *Server) handleNextClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{
		"clock": s.replica.NextClock(),
	})
}

// ─── Balances ───────────────────────────────────────────────────────────────

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := s.replica.Balance(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.replica.Entries(r.Context(), chi.URLParam(r, "account"), int(limit))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	t, err := s.replica.Treasury(r.Context(), chi.URLParam(r, "channel"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ─── Configuration ──────────────────────────────────────────────────────────

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.replica.Config(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.replica.ConfigHistory(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if hist == nil {
		hist = []domain.ConfigChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": hist,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": s.replica.Schema(),
	})
}

// ─── Governance and tasks ───────────────────────────────────────────────────

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalStatus(r.URL.Query().Get("status"))
	list, err := s.replica.Proposals(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Proposal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": list,
	})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.replica.Proposal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.replica.Tasks(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": list,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.replica.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ─── Derivation ─────────────────────────────────────────────────────────────

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diags, err := s.replica.Diagnostics(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if diags == nil {
		diags = []domain.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diagnostics": diags,
	})
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	fp, err := s.replica.Fingerprint(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &queryError{name: name, raw: raw}
	}
	return v, nil
}

type queryError struct{ name, raw string }

func (e *queryError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.raw)
}
