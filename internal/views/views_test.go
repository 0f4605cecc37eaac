package views

import (
	"testing"

	"urbanaid/internal/domain"
)

func sample() []domain.Report {
	return []domain.Report{
		{ID: "1", Status: domain.StatusCreated},
		{ID: "2", Status: domain.StatusCreated},
		{ID: "3", Status: domain.StatusAssigned, VolunteerID: "9"},
		{ID: "4", Status: domain.StatusInProgress, VolunteerID: "9"},
		{ID: "5", Status: domain.StatusCompleted, VolunteerID: "9"},
	}
}

func TestCountByStatus(t *testing.T) {
	c := CountByStatus(sample())
	if c.Created != 2 || c.Assigned != 1 || c.InProgress != 1 || c.Completed != 1 {
		t.Fatalf("counts = %+v", c)
	}
	if c.Total != 5 {
		t.Errorf("total = %d", c.Total)
	}
	// pending is everything short of completed
	if c.Pending != 4 || c.Resolved != 1 {
		t.Errorf("pending/resolved = %d/%d", c.Pending, c.Resolved)
	}
}

func TestCountByStatusEmpty(t *testing.T) {
	c := CountByStatus(nil)
	if c.Total != 0 || c.Pending != 0 || c.Resolved != 0 {
		t.Fatalf("counts for empty input = %+v", c)
	}
}

func TestMatchesSkill(t *testing.T) {
	cases := []struct {
		skill    string
		category domain.Category
		want     bool
	}{
		{"road", domain.CategoryRoadDamage, true},
		// "roads" is not a substring of "road-damage" in either direction
		{"roads", domain.CategoryRoadDamage, false},
		{"ROAD-DAMAGE", domain.CategoryRoadDamage, true},
		{"fixes road-damage and more", domain.CategoryRoadDamage, true},
		// semantically related but no substring either way
		{"electrical work", domain.CategoryStreetlight, false},
		{"plumbing", domain.CategoryWaterLeak, false},
		{"", domain.CategoryGarbage, false},
	}
	for _, c := range cases {
		if got := MatchesSkill(c.skill, c.category); got != c.want {
			t.Errorf("MatchesSkill(%q, %s) = %v, want %v", c.skill, c.category, got, c.want)
		}
	}
}

func TestSkillMatchSetBadgesWithoutNarrowing(t *testing.T) {
	nearby := []domain.Report{
		{ID: "1", Category: domain.CategoryRoadDamage, Status: domain.StatusCreated},
		{ID: "2", Category: domain.CategoryGarbage, Status: domain.StatusCreated},
	}

	set := SkillMatchSet("road", nearby)
	if !set["1"] || set["2"] {
		t.Fatalf("matches for road = %v", set)
	}

	// a skill matching nothing yields an empty badge set; the caller still
	// shows every nearby report
	set = SkillMatchSet("plumbing", nearby)
	if len(set) != 0 {
		t.Fatalf("matches for plumbing = %v", set)
	}
	if len(nearby) != 2 {
		t.Fatalf("nearby narrowed to %v", nearby)
	}
}

func TestClaimablePool(t *testing.T) {
	nearby := sample()[:2]
	pool := ClaimablePool(nearby, map[string]bool{"2": true})
	if len(pool) != 1 || pool[0].ID != "1" {
		t.Fatalf("pool = %+v", pool)
	}
	// assigned reports never belong in the pool even if listed
	pool = ClaimablePool(sample(), nil)
	if len(pool) != 2 {
		t.Fatalf("pool with assigned reports = %+v", pool)
	}
}

func TestByStatus(t *testing.T) {
	got := ByStatus(sample(), domain.StatusCreated)
	if len(got) != 2 {
		t.Fatalf("ByStatus(created) = %+v", got)
	}
}
