// Package task defines the fixed-task catalog and the pure requirement
// evaluator that decides which tasks a user may currently perform.
package task

import (
	"fmt"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// MinProducts expresses a minimum-product-count requirement.
type MinProducts struct {
	Min int `json:"min"`
}

// StateCondition is a conjunction of predicates over UserProgressionState.
// A zero-value condition is satisfied by any state.
type StateCondition struct {
	// Shop requires the user to have created a shop.
	Shop bool `json:"shop,omitempty"`

	// Brand requires a completed brand identity.
	Brand bool `json:"brand,omitempty"`

	// Products requires at least Min products in the catalog.
	Products *MinProducts `json:"products,omitempty"`

	// RUT requires a registered tax identification number.
	RUT bool `json:"rut,omitempty"`

	// MaturityBlock requires the given maturity-assessment block (1-based)
	// to be completed. Zero means no block requirement.
	MaturityBlock int `json:"maturity_block,omitempty"`

	// SocialLinks requires linked social networks.
	SocialLinks bool `json:"social_links,omitempty"`

	// BankData requires completed bank payout data.
	BankData bool `json:"bank_data,omitempty"`

	// Story requires a published shop story.
	Story bool `json:"story,omitempty"`

	// ArtisanProfile requires a completed artisan profile.
	ArtisanProfile bool `json:"artisan_profile,omitempty"`

	// HeroSlider requires a customized shop hero slider.
	HeroSlider bool `json:"hero_slider,omitempty"`

	// ContactInfo requires configured contact information.
	ContactInfo bool `json:"contact_info,omitempty"`
}

// SatisfiedBy reports whether every predicate holds against the given state.
func (c *StateCondition) SatisfiedBy(state *UserProgressionState) bool {
	if c == nil {
		return true
	}
	if c.Shop && !state.HasShop {
		return false
	}
	if c.Brand && !state.HasBrand {
		return false
	}
	if c.Products != nil && state.ProductCount < c.Products.Min {
		return false
	}
	if c.RUT && !state.HasRUT {
		return false
	}
	if c.MaturityBlock > 0 && !state.HasMaturityBlock(c.MaturityBlock) {
		return false
	}
	if c.SocialLinks && !state.HasSocialLinks {
		return false
	}
	if c.BankData && !state.HasBankData {
		return false
	}
	if c.Story && !state.HasStory {
		return false
	}
	if c.ArtisanProfile && !state.HasArtisanProfile {
		return false
	}
	if c.HeroSlider && !state.HasHeroSlider {
		return false
	}
	if c.ContactInfo && !state.HasContactInfo {
		return false
	}
	return true
}

// Requirements is the conjunction of prerequisites gating a task.
type Requirements struct {
	// MustComplete lists task ids that must all be completed first.
	MustComplete []shared.TaskID `json:"must_complete,omitempty"`

	// MustHave lists business-state predicates that must all hold.
	MustHave *StateCondition `json:"must_have,omitempty"`
}

// TaskDefinition is a static, catalog-defined unit of onboarding work.
type TaskDefinition struct {
	// ID is the stable task identifier.
	ID shared.TaskID

	// Title is the display title.
	Title string

	// Description is the display description.
	Description string

	// Milestone assigns the task to one of the five fixed milestones.
	Milestone shared.MilestoneID

	// Priority orders tasks for display (lower = more urgent).
	Priority int

	// Icon names the display icon.
	Icon string

	// EstimatedMinutes is the expected effort.
	EstimatedMinutes int

	// Requirements gate the task. Nil means always unlocked.
	Requirements *Requirements

	// CompletedWhen, if set, lets reconciliation derive completion from
	// observed business state (e.g. five products present implies the
	// five_products task is done) even when no explicit completion call
	// was recorded. Plain fact reporting never applies it.
	CompletedWhen *StateCondition
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is the validated, versioned set of all fixed tasks.
// Construction fails on any structural defect; a Catalog value is
// therefore always internally consistent.
type Catalog struct {
	version string
	tasks   []TaskDefinition
	byID    map[shared.TaskID]int
}

// NewCatalog validates the definitions and builds a catalog.
//
// Validation is a load-time concern: duplicate ids, unknown milestones,
// dangling mustComplete references and requirement cycles are all fatal
// here so they can never surface as silently-locked tasks at runtime.
func NewCatalog(version string, defs []TaskDefinition) (*Catalog, error) {
	c := &Catalog{
		version: version,
		tasks:   make([]TaskDefinition, len(defs)),
		byID:    make(map[shared.TaskID]int, len(defs)),
	}
	copy(c.tasks, defs)

	for i, def := range c.tasks {
		if !def.ID.IsValid() {
			return nil, shared.WrapError("task", "NewCatalog", shared.ErrInvalidCatalog,
				fmt.Sprintf("task at index %d has empty id", i), nil)
		}
		if !def.Milestone.IsValid() {
			return nil, shared.WrapError("task", "NewCatalog", shared.ErrInvalidCatalog,
				fmt.Sprintf("task %q: unknown milestone %q", def.ID, def.Milestone), shared.ErrCatalogBadMilestone)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, shared.WrapError("task", "NewCatalog", shared.ErrInvalidCatalog,
				fmt.Sprintf("duplicate task id %q", def.ID), shared.ErrCatalogDuplicateID)
		}
		c.byID[def.ID] = i
	}

	// Dangling references fail closed at runtime, so reject them here.
	for _, def := range c.tasks {
		if def.Requirements == nil {
			continue
		}
		for _, dep := range def.Requirements.MustComplete {
			if _, ok := c.byID[dep]; !ok {
				return nil, shared.WrapError("task", "NewCatalog", shared.ErrInvalidCatalog,
					fmt.Sprintf("task %q requires unknown task %q", def.ID, dep), shared.ErrCatalogDanglingRef)
			}
		}
	}

	if cycle := c.findCycle(); len(cycle) > 0 {
		return nil, shared.WrapError("task", "NewCatalog", shared.ErrInvalidCatalog,
			fmt.Sprintf("requirement cycle: %v", cycle), shared.ErrCatalogCycle)
	}

	return c, nil
}

// MustCatalog builds a catalog and panics on validation failure.
// Intended for the built-in catalog and tests; the engine refuses to start
// with an invalid catalog.
func MustCatalog(version string, defs []TaskDefinition) *Catalog {
	c, err := NewCatalog(version, defs)
	if err != nil {
		panic(err)
	}
	return c
}

// findCycle runs a three-color DFS over the mustComplete graph and returns
// the first cycle found, or nil.
func (c *Catalog) findCycle() []shared.TaskID {
	const (
		white = 0 // unvisited
		gray  = 1 // on current path
		black = 2 // done
	)
	color := make(map[shared.TaskID]int, len(c.tasks))

	var cycle []shared.TaskID
	var visit func(id shared.TaskID, path []shared.TaskID) bool
	visit = func(id shared.TaskID, path []shared.TaskID) bool {
		color[id] = gray
		path = append(path, id)

		def := c.tasks[c.byID[id]]
		if def.Requirements != nil {
			for _, dep := range def.Requirements.MustComplete {
				switch color[dep] {
				case gray:
					cycle = append(append([]shared.TaskID{}, path...), dep)
					return true
				case white:
					if visit(dep, path) {
						return true
					}
				}
			}
		}

		color[id] = black
		return false
	}

	for _, def := range c.tasks {
		if color[def.ID] == white {
			if visit(def.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of tasks.
func (c *Catalog) Len() int {
	return len(c.tasks)
}

// Tasks returns the definitions in declaration order.
// The returned slice must not be mutated.
func (c *Catalog) Tasks() []TaskDefinition {
	return c.tasks
}

// ByID returns the task with the given id.
func (c *Catalog) ByID(id shared.TaskID) (TaskDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return TaskDefinition{}, false
	}
	return c.tasks[i], true
}

// Contains reports whether the catalog defines the given task id.
func (c *Catalog) Contains(id shared.TaskID) bool {
	_, ok := c.byID[id]
	return ok
}

// DeclarationIndex returns the catalog declaration position of a task,
// used as the evaluator's tie-break after priority.
func (c *Catalog) DeclarationIndex(id shared.TaskID) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return len(c.tasks)
}

// TasksForMilestone returns the tasks of one milestone in declaration order.
func (c *Catalog) TasksForMilestone(m shared.MilestoneID) []TaskDefinition {
	var out []TaskDefinition
	for _, def := range c.tasks {
		if def.Milestone == m {
			out = append(out, def)
		}
	}
	return out
}

// TotalByMilestone returns the catalog-wide task count per milestone.
// Milestone progress denominators always count the entire catalog, not just
// currently-unlocked tasks, so progress cannot regress when tasks unlock.
func (c *Catalog) TotalByMilestone() map[shared.MilestoneID]int {
	totals := make(map[shared.MilestoneID]int, 5)
	for _, def := range c.tasks {
		totals[def.Milestone]++
	}
	return totals
}
