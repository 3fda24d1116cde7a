package task

import (
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// FixedCatalogVersion identifies the built-in catalog revision.
const FixedCatalogVersion = "2025.2"

// FixedTasks returns the built-in production catalog: the fixed onboarding
// journey for artisan sellers. Priorities and requirement expressions follow
// the platform's mission design; reconciliation predicates (CompletedWhen)
// mirror the business facts that imply each task is already done.
func FixedTasks() *Catalog {
	return MustCatalog(FixedCatalogVersion, []TaskDefinition{
		// ── Formalization ────────────────────────────────────────────────
		{
			ID:               "complete_rut",
			Title:            "Register your RUT",
			Description:      "Formalize your artisan business by registering your tax identification number",
			Milestone:        shared.MilestoneFormalization,
			Priority:         1,
			Icon:             "FileText",
			EstimatedMinutes: 5,
			CompletedWhen:    &StateCondition{RUT: true},
		},
		{
			ID:               "complete_bank_data",
			Title:            "Set up your bank details",
			Description:      "Add your bank information so you can receive payouts from sales",
			Milestone:        shared.MilestoneFormalization,
			Priority:         2,
			Icon:             "CreditCard",
			EstimatedMinutes: 10,
			CompletedWhen:    &StateCondition{BankData: true},
		},
		{
			ID:               "maturity_block_1",
			Title:            "Complete assessment block 1",
			Description:      "Answer the first five questions of the business maturity assessment",
			Milestone:        shared.MilestoneFormalization,
			Priority:         10,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			CompletedWhen:    &StateCondition{MaturityBlock: 1},
		},
		{
			ID:               "maturity_block_2",
			Title:            "Complete assessment block 2",
			Description:      "Continue with the second block of questions (questions 6-10)",
			Milestone:        shared.MilestoneFormalization,
			Priority:         11,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"maturity_block_1"}},
			CompletedWhen:    &StateCondition{MaturityBlock: 2},
		},
		{
			ID:               "maturity_block_3",
			Title:            "Complete assessment block 3",
			Description:      "Advance to the third block of questions (questions 11-15)",
			Milestone:        shared.MilestoneFormalization,
			Priority:         12,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"maturity_block_2"}},
			CompletedWhen:    &StateCondition{MaturityBlock: 3},
		},
		{
			ID:               "maturity_block_4",
			Title:            "Complete assessment block 4",
			Description:      "Continue with the fourth block of questions (questions 16-20)",
			Milestone:        shared.MilestoneFormalization,
			Priority:         13,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"maturity_block_3"}},
			CompletedWhen:    &StateCondition{MaturityBlock: 4},
		},
		{
			ID:               "maturity_block_5",
			Title:            "Complete assessment block 5",
			Description:      "Advance to the fifth block of questions (questions 21-25)",
			Milestone:        shared.MilestoneFormalization,
			Priority:         14,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"maturity_block_4"}},
			CompletedWhen:    &StateCondition{MaturityBlock: 5},
		},
		{
			ID:               "maturity_block_6",
			Title:            "Complete assessment block 6",
			Description:      "Finish with the last block of questions (questions 26-30)",
			Milestone:        shared.MilestoneFormalization,
			Priority:         15,
			Icon:             "Brain",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"maturity_block_5"}},
			CompletedWhen:    &StateCondition{MaturityBlock: 6},
		},

		// ── Online shop ──────────────────────────────────────────────────
		{
			ID:               "create_shop",
			Title:            "Create your online shop",
			Description:      "Set up your artisan shop and start selling online",
			Milestone:        shared.MilestoneShop,
			Priority:         16,
			Icon:             "Store",
			EstimatedMinutes: 15,
			CompletedWhen:    &StateCondition{Shop: true},
		},
		{
			ID:               "first_product",
			Title:            "Upload your first product",
			Description:      "Add your first artisan creation to the catalog",
			Milestone:        shared.MilestoneShop,
			Priority:         3,
			Icon:             "Package",
			EstimatedMinutes: 10,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_shop"}},
			CompletedWhen:    &StateCondition{Products: &MinProducts{Min: 1}},
		},
		{
			ID:               "five_products",
			Title:            "Upload 5 products",
			Description:      "Grow your catalog with more product variety",
			Milestone:        shared.MilestoneShop,
			Priority:         4,
			Icon:             "Package",
			EstimatedMinutes: 30,
			Requirements: &Requirements{
				MustComplete: []shared.TaskID{"first_product"},
				MustHave:     &StateCondition{Products: &MinProducts{Min: 1}},
			},
			CompletedWhen: &StateCondition{Products: &MinProducts{Min: 5}},
		},
		{
			ID:               "ten_products",
			Title:            "Upload 10 products",
			Description:      "Build a complete and diverse catalog",
			Milestone:        shared.MilestoneShop,
			Priority:         5,
			Icon:             "Package",
			EstimatedMinutes: 40,
			Requirements: &Requirements{
				MustComplete: []shared.TaskID{"five_products"},
				MustHave:     &StateCondition{Products: &MinProducts{Min: 5}},
			},
			CompletedWhen: &StateCondition{Products: &MinProducts{Min: 10}},
		},
		{
			ID:               "create_artisan_profile",
			Title:            "Create your artisan profile",
			Description:      "Tell your story, your origin and your craft in depth",
			Milestone:        shared.MilestoneShop,
			Priority:         6,
			Icon:             "FileText",
			EstimatedMinutes: 30,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_shop"}},
			CompletedWhen:    &StateCondition{ArtisanProfile: true},
		},
		{
			ID:               "add_contact",
			Title:            "Add your contact information",
			Description:      "Configure how customers can reach you",
			Milestone:        shared.MilestoneShop,
			Priority:         7,
			Icon:             "Mail",
			EstimatedMinutes: 10,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_shop"}},
			CompletedWhen:    &StateCondition{ContactInfo: true},
		},
		{
			ID:               "customize_shop",
			Title:            "Customize your shop hero slider",
			Description:      "Create a striking banner with images of your work",
			Milestone:        shared.MilestoneShop,
			Priority:         8,
			Icon:             "Paintbrush",
			EstimatedMinutes: 15,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_shop"}},
			CompletedWhen:    &StateCondition{HeroSlider: true},
		},

		// ── Brand identity ───────────────────────────────────────────────
		{
			ID:               "create_brand",
			Title:            "Define your brand identity",
			Description:      "Create the logo, colors and claim that represent your business",
			Milestone:        shared.MilestoneBrand,
			Priority:         9,
			Icon:             "Palette",
			EstimatedMinutes: 20,
			CompletedWhen:    &StateCondition{Brand: true},
		},
		{
			ID:               "review_brand",
			Title:            "Review your brand diagnostic",
			Description:      "Evaluate the coherence and strength of your visual identity",
			Milestone:        shared.MilestoneBrand,
			Priority:         17,
			Icon:             "CheckCircle",
			EstimatedMinutes: 10,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_brand"}},
		},

		// ── Community ────────────────────────────────────────────────────
		{
			ID:               "add_social_links",
			Title:            "Link your social networks",
			Description:      "Connect your shop with Instagram, Facebook and other networks",
			Milestone:        shared.MilestoneCommunity,
			Priority:         18,
			Icon:             "Share2",
			EstimatedMinutes: 5,
			Requirements:     &Requirements{MustComplete: []shared.TaskID{"create_shop"}},
			CompletedWhen:    &StateCondition{SocialLinks: true},
		},
	})
}
