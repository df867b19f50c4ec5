package governance

import (
	"math"
	"sort"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// WeightScale is the fixed-point unit of vote weights: 1.0 == 1_000_000.
const WeightScale = 1_000_000

// Weight returns log_base(reputation + 1) in micro-units. Rounding to a
// fixed-point integer makes tallies compare exactly on every node.
func Weight(reputation int64, base float64) int64 {
	if reputation <= 0 || base <= 1 {
		return 0
	}
	w := math.Log(float64(reputation)+1) / math.Log(base)
	return int64(math.Round(w * WeightScale))
}

// Tally sums the counted ballots of p using reputation as of the close
// event and the log base pinned when the proposal opened.
// Ties, including 0 == 0, are rejected.
func Tally(p *domain.Proposal, rep Reputation) domain.VoteTally {
	voters := make([]string, 0, len(p.Votes))
	for v := range p.Votes {
		voters = append(voters, v)
	}
	sort.Strings(voters)

	t := domain.VoteTally{LogBase: p.LogBase, Outcome: domain.OutcomeRejected}
	for _, v := range voters {
		w := Weight(rep.Reputation(v), p.LogBase)
		switch p.Votes[v].Choice {
		case domain.VoteYes:
			t.YesWeight += w
			t.YesVoters++
		case domain.VoteNo:
			t.NoWeight += w
			t.NoVoters++
		}
	}
	if t.YesWeight > t.NoWeight {
		t.Outcome = domain.OutcomeApproved
	}
	return t
}
