package model

// Challenge is the optional multi-party sub-record attached to a
// session.  It tracks the player roster and the winner vote that decides
// who pays.  The core timer state machine is unaware of it: a challenge
// only gates receipt issuance after the session has completed.
//
// A winner is decided either by a strict majority of player votes or by
// staff override.
type Challenge struct {
	Players       []ChallengePlayer `json:"players"`
	Votes         map[string]string `json:"votes,omitempty"` // voter player id -> candidate player id
	WinnerID      string            `json:"winner_id,omitempty"`
	StaffOverride bool              `json:"staff_override,omitempty"`
	Decided       bool              `json:"decided"`
}

// ChallengePlayer is one participant in a challenge session.
type ChallengePlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HasPlayer reports whether the roster contains the given player id.
func (ch *Challenge) HasPlayer(id string) bool {
	for _, p := range ch.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// MajorityWinner returns the candidate holding a strict majority of the
// roster's votes, or "" when no candidate has one yet.
func (ch *Challenge) MajorityWinner() string {
	if len(ch.Players) == 0 {
		return ""
	}
	counts := make(map[string]int, len(ch.Votes))
	for _, candidate := range ch.Votes {
		counts[candidate]++
	}
	need := len(ch.Players)/2 + 1
	for candidate, n := range counts {
		if n >= need {
			return candidate
		}
	}
	return ""
}
