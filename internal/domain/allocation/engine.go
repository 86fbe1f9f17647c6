// Package allocation computes seat assignments from a roster and catalog snapshot.
//
// Allocate is a pure function: inputs are never mutated and all changes are
// expressed in the returned Result. Applicants are processed one at a time in
// merit order; a seat taken by one applicant is visible to every later one, so
// the scan must stay sequential.
package allocation

import (
	"sort"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Placement is the outcome for one applicant. An empty ResourceID means the
// applicant is unassigned. Fallback is set when the final preference was granted
// although capacity or eligibility would have refused it; Retained marks a
// confirmed assignment carried over unchanged.
type Placement struct {
	ResourceID string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Rank       int    `json:"rank,omitempty" yaml:"rank,omitempty"`
	Fallback   bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Retained   bool   `json:"retained,omitempty" yaml:"retained,omitempty"`
}

// Assigned reports whether the placement grants a seat.
func (p Placement) Assigned() bool { return p.ResourceID != "" }

// Report counts the outcomes of one pass.
type Report struct {
	Allocated    int `json:"allocated" yaml:"allocated"`
	Unassigned   int `json:"unassigned" yaml:"unassigned"`
	Fallback     int `json:"fallback" yaml:"fallback"`
	Retained     int `json:"retained" yaml:"retained"`
	OverCapacity int `json:"over_capacity" yaml:"over_capacity"`
}

// Result is everything a pass produces.
type Result struct {
	// Assignments holds one placement per applicant id.
	Assignments map[string]Placement `json:"assignments" yaml:"assignments"`
	// Order is the merit order the applicants were processed in.
	Order []string `json:"order" yaml:"order"`
	// Resources carries the updated allocated counts, in input order.
	Resources []model.Resource `json:"resources" yaml:"resources"`
	Report    Report           `json:"report" yaml:"report"`
}

// Allocate runs one allocation pass.
//
// Ordering is merit descending, then TieBreakScore descending; applicants equal
// on both keep roster order (stable sort), so the roster provider's ordering is
// the last tie-break. Confirmed applicants are not
// re-scanned: their assignment is retained and their seat is reserved before
// anyone else is placed. Every non-final preference is accepted only with a free
// seat and sufficient merit; an applicant who gets none of those is granted the
// final preference unconditionally, which may overfill it. An empty preference
// list leaves the applicant unassigned.
func Allocate(applicants []model.Applicant, resources []model.Resource) Result {
	res := Result{
		Assignments: make(map[string]Placement, len(applicants)),
		Order:       make([]string, 0, len(applicants)),
		Resources:   append([]model.Resource(nil), resources...),
	}

	index := make(map[string]int, len(res.Resources))
	for i := range res.Resources {
		index[res.Resources[i].ID] = i
	}

	ordered := make([]*model.Applicant, len(applicants))
	for i := range applicants {
		ordered[i] = &applicants[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].MeritScore != ordered[j].MeritScore {
			return ordered[i].MeritScore > ordered[j].MeritScore
		}
		return ordered[i].TieBreakScore > ordered[j].TieBreakScore
	})

	// Seats held by confirmed applicants are taken before the scan starts.
	for _, a := range ordered {
		if !a.Confirmed || !a.Assigned() {
			continue
		}
		if i, ok := index[a.AssignedResourceID]; ok {
			res.Resources[i].AllocatedCount++
		}
	}

	for _, a := range ordered {
		res.Order = append(res.Order, a.ID)

		if a.Confirmed {
			p := Placement{ResourceID: a.AssignedResourceID, Rank: rankOf(a.Preferences, a.AssignedResourceID), Retained: true}
			res.Assignments[a.ID] = p
			if p.Assigned() {
				res.Report.Retained++
				res.Report.Allocated++
			} else {
				res.Report.Unassigned++
			}
			continue
		}

		p := place(a, res.Resources, index)
		res.Assignments[a.ID] = p
		switch {
		case !p.Assigned():
			res.Report.Unassigned++
		case p.Fallback:
			res.Report.Fallback++
			res.Report.Allocated++
		default:
			res.Report.Allocated++
		}
	}

	for i := range res.Resources {
		if res.Resources[i].AllocatedCount > res.Resources[i].Capacity {
			res.Report.OverCapacity++
		}
	}
	return res
}

// place scans one applicant's preferences and consumes a seat in resources.
func place(a *model.Applicant, resources []model.Resource, index map[string]int) Placement {
	prefs := byRank(a.Preferences)
	if len(prefs) == 0 {
		return Placement{}
	}

	last := len(prefs) - 1
	for _, pref := range prefs[:last] {
		i, ok := index[pref.ResourceID]
		if !ok {
			continue
		}
		r := &resources[i]
		if r.HasRoom() && r.Admits(a.MeritScore) {
			r.AllocatedCount++
			return Placement{ResourceID: r.ID, Rank: pref.Rank}
		}
	}

	// Last resort: the final preference is granted without capacity or
	// eligibility checks. Fallback marks grants that a check would have refused.
	final := prefs[last]
	i, ok := index[final.ResourceID]
	if !ok {
		return Placement{ResourceID: final.ResourceID, Rank: final.Rank, Fallback: true}
	}
	r := &resources[i]
	forced := !r.HasRoom() || !r.Admits(a.MeritScore)
	r.AllocatedCount++
	return Placement{ResourceID: r.ID, Rank: final.Rank, Fallback: forced}
}

// byRank returns a copy of prefs ordered by ascending rank.
func byRank(prefs []model.Preference) []model.Preference {
	out := append([]model.Preference(nil), prefs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func rankOf(prefs []model.Preference, resourceID string) int {
	for _, p := range prefs {
		if p.ResourceID == resourceID {
			return p.Rank
		}
	}
	return 0
}

// AllocateValidated validates the snapshot and allocates only if it is well formed.
func AllocateValidated(applicants []model.Applicant, resources []model.Resource) (Result, error) {
	if err := Validate(applicants, resources); err != nil {
		return Result{}, err
	}
	return Allocate(applicants, resources), nil
}

// Apply writes a result back onto applicant copies, for sinks that persist
// whole applicant records.
func Apply(applicants []model.Applicant, res Result) []model.Applicant {
	out := make([]model.Applicant, len(applicants))
	for i := range applicants {
		out[i] = applicants[i].Clone()
		if p, ok := res.Assignments[out[i].ID]; ok && !p.Retained {
			out[i].AssignedResourceID = p.ResourceID
		}
	}
	return out
}
