package game

// Standing is one leaderboard row.
type Standing struct {
	Participant string `json:"participant"`
	Winnings    uint64 `json:"winnings"`
	Wins        uint64 `json:"wins"`
}

// Leaderboard keeps the top participants by cumulative winnings, highest
// first. Updates are a linear scan plus insertion bubble; the table is
// small and capped so this stays cheap. Not safe for concurrent use.
type Leaderboard struct {
	capacity int
	entries  []Standing
}

func NewLeaderboard(capacity int) *Leaderboard {
	if capacity <= 0 {
		capacity = LEADERBOARD_SIZE
	}
	return &Leaderboard{capacity: capacity, entries: make([]Standing, 0, capacity)}
}

// Update records a participant's new cumulative totals. Winnings only grow,
// so an entry can only move towards the head.
func (lb *Leaderboard) Update(participant string, winnings, wins uint64) {
	idx := -1
	for i := range lb.entries {
		if lb.entries[i].Participant == participant {
			idx = i
			break
		}
	}

	entry := Standing{Participant: participant, Winnings: winnings, Wins: wins}
	switch {
	case idx >= 0:
		lb.entries[idx] = entry
	case len(lb.entries) < lb.capacity:
		lb.entries = append(lb.entries, entry)
		idx = len(lb.entries) - 1
	default:
		last := len(lb.entries) - 1
		if winnings <= lb.entries[last].Winnings {
			return
		}
		lb.entries[last] = entry
		idx = last
	}

	for idx > 0 && lb.entries[idx].Winnings > lb.entries[idx-1].Winnings {
		lb.entries[idx], lb.entries[idx-1] = lb.entries[idx-1], lb.entries[idx]
		idx--
	}
}

// Top returns up to k leading entries. k <= 0 returns all of them.
func (lb *Leaderboard) Top(k int) []Standing {
	if k <= 0 || k > len(lb.entries) {
		k = len(lb.entries)
	}
	out := make([]Standing, k)
	copy(out, lb.entries[:k])
	return out
}

func (lb *Leaderboard) Len() int {
	return len(lb.entries)
}
