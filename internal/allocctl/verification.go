package allocctl

import (
	"fmt"
	"sort"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
)

// Violation is one broken allocation invariant found in a result.
type Violation struct {
	Rule        string
	ApplicantID string
	ResourceID  string
	Detail      string
}

// Verify checks res against the scored snapshot it was computed from:
//   - every applicant is placed once and the order is merit descending;
//   - resource counts match the placements and only fallback or retained
//     seats push a resource past capacity;
//   - confirmed applicants keep their seat;
//   - nobody with preferences is left unassigned;
//   - no applicant was passed over for a better-ranked choice that still had a
//     free seat they were eligible for.
func Verify(snap snapshot.Snapshot, res snapshot.Result) []Violation {
	var out []Violation
	add := func(rule, applicantID, resourceID, format string, args ...any) {
		out = append(out, Violation{Rule: rule, ApplicantID: applicantID, ResourceID: resourceID, Detail: fmt.Sprintf(format, args...)})
	}

	applicants := make(map[string]*model.Applicant, len(snap.Applicants))
	for i := range snap.Applicants {
		applicants[snap.Applicants[i].ID] = &snap.Applicants[i]
	}
	resources := make(map[string]model.Resource, len(snap.Resources))
	for _, r := range snap.Resources {
		resources[r.ID] = r
	}

	// Placement coverage and merit order.
	seen := make(map[string]struct{}, len(res.Order))
	prev := 0.0
	for i, id := range res.Order {
		a, ok := applicants[id]
		if !ok {
			add("order", id, "", "applicant not in snapshot")
			continue
		}
		if _, dup := seen[id]; dup {
			add("order", id, "", "processed twice")
		}
		seen[id] = struct{}{}
		if i > 0 && a.MeritScore > prev {
			add("order", id, "", "merit %.3f follows lower merit %.3f", a.MeritScore, prev)
		}
		prev = a.MeritScore
	}
	for id := range applicants {
		if _, ok := res.Assignments[id]; !ok {
			add("missing", id, "", "no placement")
		}
	}

	// Seat counts.
	counts := make(map[string]int, len(resources))
	overflow := make(map[string]bool, len(resources))
	for _, p := range res.Assignments {
		if !p.Assigned() {
			continue
		}
		counts[p.ResourceID]++
		if p.Fallback || p.Retained {
			overflow[p.ResourceID] = true
		}
	}
	over := 0
	for _, r := range res.Resources {
		if counts[r.ID] != r.AllocatedCount {
			add("count", "", r.ID, "allocated_count %d but %d placements", r.AllocatedCount, counts[r.ID])
		}
		if counts[r.ID] > r.Capacity {
			over++
			if !overflow[r.ID] {
				add("capacity", "", r.ID, "%d seats granted over capacity %d without a fallback", counts[r.ID], r.Capacity)
			}
		}
	}

	for _, id := range sortedIDs(applicants) {
		a := applicants[id]
		p, ok := res.Assignments[id]
		if !ok {
			continue
		}
		switch {
		case a.Confirmed:
			if !p.Retained || p.ResourceID != a.AssignedResourceID {
				add("confirmed", id, p.ResourceID, "confirmed seat %q not retained", a.AssignedResourceID)
			}
			continue
		case p.Retained:
			add("confirmed", id, p.ResourceID, "retained without confirmation")
			continue
		case !p.Assigned():
			if len(a.Preferences) > 0 {
				add("unassigned", id, "", "left without a seat despite %d preferences", len(a.Preferences))
			}
			continue
		}
		out = append(out, verifyChoice(a, p, resources, counts)...)
	}

	report := res.Report
	want := allocation.Report{OverCapacity: over}
	for _, p := range res.Assignments {
		switch {
		case !p.Assigned():
			want.Unassigned++
		default:
			want.Allocated++
			if p.Fallback {
				want.Fallback++
			}
			if p.Retained {
				want.Retained++
			}
		}
	}
	if report != want {
		add("report", "", "", "report %+v does not match placements %+v", report, want)
	}
	return out
}

// verifyChoice checks one placement against the applicant's ranked list.
func verifyChoice(a *model.Applicant, p allocation.Placement, resources map[string]model.Resource, counts map[string]int) []Violation {
	var out []Violation
	add := func(rule, resourceID, format string, args ...any) {
		out = append(out, Violation{Rule: rule, ApplicantID: a.ID, ResourceID: resourceID, Detail: fmt.Sprintf(format, args...)})
	}

	prefs := append([]model.Preference(nil), a.Preferences...)
	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].Rank < prefs[j].Rank })

	granted := -1
	for i, pref := range prefs {
		if pref.ResourceID == p.ResourceID {
			granted = i
			break
		}
	}
	if granted < 0 {
		add("preference", p.ResourceID, "granted a resource that is not on the list")
		return out
	}
	last := len(prefs) - 1
	if p.Fallback && granted != last {
		add("preference", p.ResourceID, "fallback on rank %d, not the final preference", prefs[granted].Rank)
	}
	if !p.Fallback && granted != last {
		if r, ok := resources[p.ResourceID]; ok && !r.Admits(a.MeritScore) {
			add("eligibility", p.ResourceID, "merit %.3f below threshold %.3f", a.MeritScore, r.EligibilityThreshold)
		}
	}

	// Seats only fill up, so a better choice still open at the end of the pass
	// was open when this applicant was placed.
	for _, pref := range prefs[:granted] {
		r, ok := resources[pref.ResourceID]
		if !ok || !r.Admits(a.MeritScore) {
			continue
		}
		if counts[r.ID] < r.Capacity {
			add("preference", r.ID, "passed over rank %d with %d of %d seats taken", pref.Rank, counts[r.ID], r.Capacity)
		}
	}
	return out
}

func sortedIDs(m map[string]*model.Applicant) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
