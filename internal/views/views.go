package views

import (
	"strings"

	"urbanaid/internal/domain"
)

// Pure derivations over a report snapshot plus actor identity. Nothing here
// mutates state or talks to the network.

// Counts summarizes a report list for dashboards. Pending is everything not
// yet completed; Resolved is completed.
type Counts struct {
	Created    int `json:"created"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	Resolved   int `json:"resolved"`
	Total      int `json:"total"`
}

// CountByStatus tallies reports per lifecycle state.
func CountByStatus(reports []domain.Report) Counts {
	var c Counts
	for _, r := range reports {
		switch r.Status {
		case domain.StatusCreated:
			c.Created++
		case domain.StatusAssigned:
			c.Assigned++
		case domain.StatusInProgress:
			c.InProgress++
		case domain.StatusCompleted:
			c.Completed++
		}
		if r.Status == domain.StatusCompleted {
			c.Resolved++
		} else {
			c.Pending++
		}
		c.Total++
	}
	return c
}

// MatchesSkill is the skill-match highlight: a case-insensitive
// bidirectional substring test between the volunteer's declared skill and
// the report category. It is a deliberate heuristic ("road" matches
// "road-damage"); looseness and all, it is reproduced as shipped.
func MatchesSkill(skill string, category domain.Category) bool {
	if skill == "" || category == "" {
		return false
	}
	s := strings.ToLower(skill)
	c := strings.ToLower(string(category))
	return strings.Contains(s, c) || strings.Contains(c, s)
}

// SkillMatchSet returns the ids of the reports whose category matches the
// volunteer's skill. Callers badge these rows; the pool itself is never
// narrowed by skill.
func SkillMatchSet(skill string, reports []domain.Report) map[string]bool {
	out := make(map[string]bool, len(reports))
	for _, r := range reports {
		if MatchesSkill(skill, r.Category) {
			out[r.ID] = true
		}
	}
	return out
}

// ClaimablePool filters nearby reports through the optimistic hidden set
// (ids with a claim in flight or already claimed by this actor). Reports
// past created are not claimable and are dropped even if the backend still
// lists them.
func ClaimablePool(nearby []domain.Report, hidden map[string]bool) []domain.Report {
	out := make([]domain.Report, 0, len(nearby))
	for _, r := range nearby {
		if hidden[r.ID] || r.Status != domain.StatusCreated {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ByStatus selects reports in a given state, preserving order.
func ByStatus(reports []domain.Report, status domain.Status) []domain.Report {
	var out []domain.Report
	for _, r := range reports {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
