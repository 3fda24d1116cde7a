package task

import (
	"sort"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// UserProgressionState is the per-user mutable state the engine owns.
// It is created lazily on first write and mutated exclusively through
// ApplyFact and CompleteTask. Mutation is monotonic within a session:
// counts only increase and booleans only flip false to true.
type UserProgressionState struct {
	UserID shared.UserID

	HasShop           bool
	HasBrand          bool
	ProductCount      int
	HasRUT            bool
	HasSocialLinks    bool
	HasBankData       bool
	HasStory          bool
	HasArtisanProfile bool
	HasHeroSlider     bool
	HasContactInfo    bool

	// CompletedMaturityBlocks holds completed assessment block numbers (1-based).
	CompletedMaturityBlocks map[int]struct{}

	// CompletedTasks maps completed task ids to their completion time.
	CompletedTasks map[shared.TaskID]time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserProgressionState creates a blank state for a user.
func NewUserProgressionState(userID shared.UserID) *UserProgressionState {
	now := time.Now().UTC()
	return &UserProgressionState{
		UserID:                  userID,
		CompletedMaturityBlocks: make(map[int]struct{}),
		CompletedTasks:          make(map[shared.TaskID]time.Time),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// HasMaturityBlock reports whether the given assessment block is completed.
func (s *UserProgressionState) HasMaturityBlock(n int) bool {
	_, ok := s.CompletedMaturityBlocks[n]
	return ok
}

// IsTaskCompleted reports whether the task is in the completed set.
func (s *UserProgressionState) IsTaskCompleted(id shared.TaskID) bool {
	_, ok := s.CompletedTasks[id]
	return ok
}

// CompleteTask adds a task to the completed set.
// Returns false if the task was already completed (idempotent replay).
func (s *UserProgressionState) CompleteTask(id shared.TaskID, at time.Time) bool {
	if s.IsTaskCompleted(id) {
		return false
	}
	s.CompletedTasks[id] = at.UTC()
	s.touch(at)
	return true
}

// CompletedTaskIDs returns the completed ids sorted by completion time,
// most recent first.
func (s *UserProgressionState) CompletedTaskIDs() []shared.TaskID {
	ids := make([]shared.TaskID, 0, len(s.CompletedTasks))
	for id := range s.CompletedTasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.CompletedTasks[ids[i]], s.CompletedTasks[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.After(tj)
	})
	return ids
}

func (s *UserProgressionState) touch(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	s.UpdatedAt = at.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTS
// ══════════════════════════════════════════════════════════════════════════════

// FactKind enumerates the business facts collaborators may report.
type FactKind string

const (
	FactShopCreated             FactKind = "shop_created"
	FactBrandCompleted          FactKind = "brand_completed"
	FactProductAdded            FactKind = "product_added"
	FactRUTRegistered           FactKind = "rut_registered"
	FactSocialLinksAdded        FactKind = "social_links_added"
	FactBankDataCompleted       FactKind = "bank_data_completed"
	FactStoryCreated            FactKind = "story_created"
	FactArtisanProfileCompleted FactKind = "artisan_profile_completed"
	FactHeroSliderCustomized    FactKind = "hero_slider_customized"
	FactContactInfoAdded        FactKind = "contact_info_added"
	FactMaturityBlockCompleted  FactKind = "maturity_block_completed"
)

// Fact reports one business fact becoming true for a user.
type Fact struct {
	Kind FactKind

	// Count is the observed product total (FactProductAdded only).
	Count int

	// Block is the completed assessment block number (FactMaturityBlockCompleted only).
	Block int
}

// Validate checks the fact for structural validity.
func (f Fact) Validate() error {
	switch f.Kind {
	case FactShopCreated, FactBrandCompleted, FactRUTRegistered,
		FactSocialLinksAdded, FactBankDataCompleted, FactStoryCreated,
		FactArtisanProfileCompleted, FactHeroSliderCustomized, FactContactInfoAdded:
		return nil
	case FactProductAdded:
		if f.Count < 0 {
			return shared.NewDomainError("task", "ReportFact", shared.ErrNegativeValue, "product count cannot be negative")
		}
		return nil
	case FactMaturityBlockCompleted:
		if f.Block < 1 {
			return shared.NewDomainError("task", "ReportFact", shared.ErrValueOutOfRange, "maturity block must be >= 1")
		}
		return nil
	default:
		return shared.NewDomainError("task", "ReportFact", shared.ErrInvalidInput, "unknown fact kind")
	}
}

// ProductAdded builds a FactProductAdded carrying the observed product total.
func ProductAdded(count int) Fact {
	return Fact{Kind: FactProductAdded, Count: count}
}

// MaturityBlockCompleted builds a FactMaturityBlockCompleted.
func MaturityBlockCompleted(block int) Fact {
	return Fact{Kind: FactMaturityBlockCompleted, Block: block}
}

// ApplyFact mutates the state with a reported fact.
// Returns true when the fact actually changed something; monotonicity is
// enforced here (a lower product count than the current one is a no-op).
func (s *UserProgressionState) ApplyFact(fact Fact, at time.Time) bool {
	changed := false

	switch fact.Kind {
	case FactShopCreated:
		changed = s.setFlag(&s.HasShop)
	case FactBrandCompleted:
		changed = s.setFlag(&s.HasBrand)
	case FactRUTRegistered:
		changed = s.setFlag(&s.HasRUT)
	case FactSocialLinksAdded:
		changed = s.setFlag(&s.HasSocialLinks)
	case FactBankDataCompleted:
		changed = s.setFlag(&s.HasBankData)
	case FactStoryCreated:
		changed = s.setFlag(&s.HasStory)
	case FactArtisanProfileCompleted:
		changed = s.setFlag(&s.HasArtisanProfile)
	case FactHeroSliderCustomized:
		changed = s.setFlag(&s.HasHeroSlider)
	case FactContactInfoAdded:
		changed = s.setFlag(&s.HasContactInfo)
	case FactProductAdded:
		if fact.Count > s.ProductCount {
			s.ProductCount = fact.Count
			changed = true
		}
	case FactMaturityBlockCompleted:
		if !s.HasMaturityBlock(fact.Block) {
			s.CompletedMaturityBlocks[fact.Block] = struct{}{}
			changed = true
		}
	}

	if changed {
		s.touch(at)
	}
	return changed
}

func (s *UserProgressionState) setFlag(flag *bool) bool {
	if *flag {
		return false
	}
	*flag = true
	return true
}
