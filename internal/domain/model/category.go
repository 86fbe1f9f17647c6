// Package model contains domain models passed between layers.
package model

import (
	"strings"
)

// Category selects which allocation cycle a roster, catalog or pass belongs to.
type Category string

// Known categories.
const (
	CategoryElective  Category = "elective"
	CategoryLifeSkill Category = "life_skill"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryElective, CategoryLifeSkill}
}

// ParseCategory maps user input onto a Category. Plural and dashed spellings are
// accepted since the surrounding system uses them interchangeably.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "elective", "electives":
		return CategoryElective, nil
	case "life_skill", "life_skills", "life-skill", "life-skills", "lifeskill", "lifeskills":
		return CategoryLifeSkill, nil
	}
	return "", NewValidationError(Issue{Field: "category", Reason: "unknown category " + quote(s)})
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryElective || c == CategoryLifeSkill
}

func (c Category) String() string { return string(c) }

func quote(s string) string { return "\"" + s + "\"" }
