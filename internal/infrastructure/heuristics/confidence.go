package heuristics

import "github.com/kirillkom/cardscan/internal/core/domain"

// Scoring weights. Completeness dominates; identity and contactability
// count extra because a card without them is not actionable.
const (
	canonicalFieldCount = 7

	nameBonus    = 0.10
	emailBonus   = 0.05
	contactBonus = 0.05
)

// Score computes the aggregate confidence for an extraction: the share
// of the seven canonical fields that are filled, plus bonuses for name,
// email and a reachable phone number, clamped to [0,1]. More filled
// fields never lower the score.
func Score(data *domain.ParsedCardData) float64 {
	filled := 0
	hasPhone := data.Phone != "" || data.Mobile != ""

	if data.Name != "" {
		filled++
	}
	if data.Email != "" {
		filled++
	}
	if hasPhone {
		filled++
	}
	if data.Company != "" {
		filled++
	}
	if data.JobTitle != "" {
		filled++
	}
	if data.Address != "" {
		filled++
	}
	if data.Website != "" {
		filled++
	}

	score := float64(filled) / canonicalFieldCount
	if data.Name != "" {
		score += nameBonus
	}
	if data.Email != "" {
		score += emailBonus
	}
	if hasPhone {
		score += contactBonus
	}

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
