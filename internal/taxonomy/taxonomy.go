// Package taxonomy defines the read-only organizational structure the engine
// categorizes captures into: pillars (broad life domains) containing areas,
// which in turn contain projects. The engine receives a snapshot owned by the
// caller and never mutates it.
package taxonomy

import (
	"errors"
	"strings"
)

// ErrNoTaxonomy is returned when a snapshot contains no pillars. Callers are
// expected to fall back to rule-based categorization rather than surface it.
var ErrNoTaxonomy = errors.New("taxonomy is empty")

// Project is a concrete initiative under an area.
type Project struct {
	ID     string
	Name   string
	Active bool
}

// Area is a sub-domain under a pillar.
type Area struct {
	ID       string
	Name     string
	Projects []Project
}

// Pillar is a broad life domain, the root of the hierarchy.
type Pillar struct {
	ID    string
	Name  string
	Areas []Area
}

// Snapshot is an immutable view of the user's full taxonomy. Pillar order is
// declaration order and is significant: scoring tie-breaks depend on it.
type Snapshot struct {
	Pillars []Pillar
}

// Empty reports whether the snapshot has no pillars.
func (s Snapshot) Empty() bool { return len(s.Pillars) == 0 }

// ChildCount returns the number of areas plus projects under a pillar,
// used as its usage-frequency proxy.
func ChildCount(p Pillar) int {
	n := len(p.Areas)
	for _, a := range p.Areas {
		n += len(a.Projects)
	}
	return n
}

// Leaf is a single categorization target: a pillar, optionally narrowed to
// an area and further to a project.
type Leaf struct {
	Pillar  string
	Area    string
	Project string
}

// Key returns the canonical lowercase identity of a leaf, used as the
// learned-weights map key. Empty segments are preserved so "health//" and
// "health/fitness/" remain distinct.
func (l Leaf) Key() string {
	return strings.ToLower(l.Pillar) + "/" + strings.ToLower(l.Area) + "/" + strings.ToLower(l.Project)
}

// Leaves enumerates every categorization target in the snapshot in
// declaration order: each pillar, then each of its areas, then each project.
// The order is deterministic and feeds directly into scoring and ranking.
func (s Snapshot) Leaves() []Leaf {
	var leaves []Leaf
	for _, p := range s.Pillars {
		leaves = append(leaves, Leaf{Pillar: p.Name})
		for _, a := range p.Areas {
			leaves = append(leaves, Leaf{Pillar: p.Name, Area: a.Name})
			for _, pr := range a.Projects {
				leaves = append(leaves, Leaf{Pillar: p.Name, Area: a.Name, Project: pr.Name})
			}
		}
	}
	return leaves
}

// ActiveProjects returns the names of all projects marked active, for the
// context snapshot's active-work signal.
func (s Snapshot) ActiveProjects() []string {
	var names []string
	for _, p := range s.Pillars {
		for _, a := range p.Areas {
			for _, pr := range a.Projects {
				if pr.Active {
					names = append(names, pr.Name)
				}
			}
		}
	}
	return names
}
