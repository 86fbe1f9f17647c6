package allocation

import (
	"sort"
	"strconv"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Validate checks the structural preconditions Allocate relies on and returns a
// *model.ValidationError listing every problem found, or nil.
func Validate(applicants []model.Applicant, resources []model.Resource) error {
	var issues []model.Issue

	known := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			issues = append(issues, model.Issue{Field: "id", Reason: "empty resource id"})
			continue
		}
		if _, dup := known[r.ID]; dup {
			issues = append(issues, model.Issue{ResourceID: r.ID, Field: "id", Reason: "duplicate resource id"})
		}
		known[r.ID] = struct{}{}
		if r.Capacity < 0 {
			issues = append(issues, model.Issue{ResourceID: r.ID, Field: "capacity", Reason: "must not be negative"})
		}
		if r.AllocatedCount < 0 {
			issues = append(issues, model.Issue{ResourceID: r.ID, Field: "allocated_count", Reason: "must not be negative"})
		}
	}

	seen := make(map[string]struct{}, len(applicants))
	for i := range applicants {
		a := &applicants[i]
		if a.ID == "" {
			issues = append(issues, model.Issue{Field: "id", Reason: "empty applicant id"})
			continue
		}
		if _, dup := seen[a.ID]; dup {
			issues = append(issues, model.Issue{ApplicantID: a.ID, Field: "id", Reason: "duplicate applicant id"})
		}
		seen[a.ID] = struct{}{}
		if a.Confirmed && !a.Assigned() {
			issues = append(issues, model.Issue{ApplicantID: a.ID, Field: "confirmed", Reason: "confirmed without an assignment"})
		}
		if a.Confirmed && a.Assigned() {
			if _, ok := known[a.AssignedResourceID]; !ok {
				issues = append(issues, model.Issue{ApplicantID: a.ID, ResourceID: a.AssignedResourceID, Field: "assigned_resource_id", Reason: "confirmed seat on unknown resource"})
			}
		}
		issues = append(issues, ValidatePreferences(a.ID, a.Preferences, a.CompletedResourceIDs, known)...)
	}

	if len(issues) > 0 {
		return model.NewValidationError(issues...)
	}
	return nil
}

// ValidatePreferences checks one preference list: ranks positive, unique and
// contiguous from 1, resources unique, known (when catalog is non-nil) and not
// already completed.
func ValidatePreferences(applicantID string, prefs []model.Preference, completed []string, catalog map[string]struct{}) []model.Issue {
	var issues []model.Issue
	add := func(resourceID, field, reason string) {
		issues = append(issues, model.Issue{ApplicantID: applicantID, ResourceID: resourceID, Field: field, Reason: reason})
	}

	done := make(map[string]struct{}, len(completed))
	for _, c := range completed {
		done[c] = struct{}{}
	}

	ranks := make(map[int]struct{}, len(prefs))
	refs := make(map[string]struct{}, len(prefs))
	badRank := false
	for _, p := range prefs {
		if p.Rank < 1 {
			badRank = true
			add(p.ResourceID, "rank", "must be a positive integer, got "+strconv.Itoa(p.Rank))
		} else if _, dup := ranks[p.Rank]; dup {
			badRank = true
			add(p.ResourceID, "rank", "duplicate rank "+strconv.Itoa(p.Rank))
		}
		ranks[p.Rank] = struct{}{}

		switch {
		case p.ResourceID == "":
			add("", "resource_id", "empty resource reference")
		default:
			if _, dup := refs[p.ResourceID]; dup {
				add(p.ResourceID, "resource_id", "duplicate resource reference")
			}
			refs[p.ResourceID] = struct{}{}
			if catalog != nil {
				if _, ok := catalog[p.ResourceID]; !ok {
					add(p.ResourceID, "resource_id", "unknown resource")
				}
			}
			if _, ok := done[p.ResourceID]; ok {
				add(p.ResourceID, "resource_id", "resource already completed")
			}
		}
	}

	if !badRank && len(ranks) == len(prefs) {
		sorted := make([]int, 0, len(ranks))
		for r := range ranks {
			sorted = append(sorted, r)
		}
		sort.Ints(sorted)
		for i, r := range sorted {
			if r != i+1 {
				add("", "rank", "ranks must be contiguous from 1, missing "+strconv.Itoa(i+1))
				break
			}
		}
	}
	return issues
}
