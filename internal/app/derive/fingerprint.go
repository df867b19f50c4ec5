package derive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// canonicalState is everything two converged replicas must agree on.
type canonicalState struct {
	Balances    map[string]int64      `json:"balances"`
	Reputation  map[string]int64      `json:"reputation"`
	Config      domain.ConfigSnapshot `json:"config"`
	History     []domain.ConfigChange `json:"config_history"`
	Tasks       []domain.Task         `json:"tasks"`
	Proposals   []*domain.Proposal    `json:"proposals"`
	Diagnostics []domain.Diagnostic   `json:"diagnostics"`
}

// Fingerprint returns the hex SHA-256 of the RFC 8785 canonical JSON of the
// derived state.
func (s *State) Fingerprint() (string, error) {
	raw, err := json.Marshal(canonicalState{
		Balances:    s.Ledger.Balances(),
		Reputation:  s.Ledger.Reputations(),
		Config:      s.Config.Snapshot(),
		History:     s.Config.History(),
		Tasks:       s.Ledger.Tasks(),
		Proposals:   s.Gov.Proposals(""),
		Diagnostics: s.Diagnostics(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize state: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// EventSetDigest returns the hex SHA-256 of the sorted (id, signature) pairs
// of every folded event. Replicas with equal digests folded the same event
// set; two different events stored under one id do not collide.
func (s *State) EventSetDigest() string {
	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(s.seen[id]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CheckConvergence compares the state digests of two replicas that folded
// the same event set. A mismatch is an implementation bug.
func CheckConvergence(events int, local, remote string) error {
	if local == remote {
		return nil
	}
	return &domain.DivergenceError{Events: events, Local: local, Remote: remote}
}
