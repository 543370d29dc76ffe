package progression

import (
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/dadbase/dadbase/internal/domain"
)

// Catalog holds the process-wide read-only tables: levels, badges, titles
// and the daily quest pool. It is loaded once at startup and never mutated.
type Catalog struct {
	Levels []domain.LevelDefinition `toml:"levels"`
	Badges []domain.BadgeDefinition `toml:"badges"`
	Titles []domain.TitleDefinition `toml:"titles"`
	Quests []domain.QuestDefinition `toml:"quests"`
}

// DefaultCatalog returns a copy of the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Levels: slices.Clone(defaultLevels),
		Badges: slices.Clone(defaultBadges),
		Titles: slices.Clone(defaultTitles),
		Quests: slices.Clone(defaultQuests),
	}
}

// LoadCatalog reads a TOML catalog file over the built-ins. Each non-empty
// section in the file replaces the matching built-in table wholesale.
// An empty path returns the validated defaults.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path != "" {
		var file Catalog
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidCatalog, path, err)
		}
		if len(file.Levels) > 0 {
			cat.Levels = file.Levels
		}
		if len(file.Badges) > 0 {
			cat.Badges = file.Badges
		}
		if len(file.Titles) > 0 {
			cat.Titles = file.Titles
		}
		if len(file.Quests) > 0 {
			cat.Quests = file.Quests
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate checks the catalog invariants. Every failure wraps ErrInvalidCatalog.
func (c *Catalog) Validate() error {
	if err := validateLevels(c.Levels); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, b := range c.Badges {
		if b.ID == "" || seen[b.ID] {
			return invalid("duplicate or empty badge id %q", b.ID)
		}
		seen[b.ID] = true
		if err := validateRequirement(b.Requirement, false); err != nil {
			return fmt.Errorf("badge %q: %w", b.ID, err)
		}
		if err := validateRarity(b.Rarity); err != nil {
			return fmt.Errorf("badge %q: %w", b.ID, err)
		}
	}

	clear(seen)
	for _, t := range c.Titles {
		if t.ID == "" || seen[t.ID] {
			return invalid("duplicate or empty title id %q", t.ID)
		}
		seen[t.ID] = true
		if err := validateRequirement(t.Requirement, true); err != nil {
			return fmt.Errorf("title %q: %w", t.ID, err)
		}
		if err := validateRarity(t.Rarity); err != nil {
			return fmt.Errorf("title %q: %w", t.ID, err)
		}
	}

	clear(seen)
	for _, q := range c.Quests {
		if q.ID == "" || seen[q.ID] {
			return invalid("duplicate or empty quest id %q", q.ID)
		}
		seen[q.ID] = true
		switch q.Category {
		case domain.QuestSocial, domain.QuestContent, domain.QuestActivity:
		default:
			return invalid("quest %q: unknown category %q", q.ID, q.Category)
		}
		if _, ok := baseXP[q.Action]; !ok {
			return invalid("quest %q: unknown action %q", q.ID, q.Action)
		}
		if q.Target <= 0 || q.RewardXP <= 0 {
			return invalid("quest %q: target and reward must be positive", q.ID)
		}
	}
	return nil
}

// Title returns the title definition with the given id.
func (c *Catalog) Title(id string) (domain.TitleDefinition, bool) {
	for _, t := range c.Titles {
		if t.ID == id {
			return t, true
		}
	}
	return domain.TitleDefinition{}, false
}

// Badge returns the badge definition with the given id.
func (c *Catalog) Badge(id string) (domain.BadgeDefinition, bool) {
	for _, b := range c.Badges {
		if b.ID == id {
			return b, true
		}
	}
	return domain.BadgeDefinition{}, false
}

func validateLevels(levels []domain.LevelDefinition) error {
	if len(levels) == 0 {
		return invalid("level table is empty")
	}
	if levels[0].MinXP != 0 {
		return invalid("first level must start at 0 xp, got %d", levels[0].MinXP)
	}
	for i, l := range levels {
		if l.Level != i+1 {
			return invalid("levels must be contiguous from 1, got %d at position %d", l.Level, i)
		}
		if i > 0 && l.MinXP <= levels[i-1].MinXP {
			return invalid("level %d min_xp %d does not increase", l.Level, l.MinXP)
		}
	}
	return nil
}

func validateRequirement(r domain.Requirement, allowSpecial bool) error {
	if r.Dimension == domain.DimSpecial {
		if !allowSpecial {
			return invalid("special requirement is only valid on titles")
		}
		return nil
	}
	if _, err := (domain.Metrics{}).Value(r.Dimension); err != nil {
		return fmt.Errorf("%w: %w %q", domain.ErrInvalidCatalog, err, r.Dimension)
	}
	if r.Threshold <= 0 {
		return invalid("threshold must be positive, got %d", r.Threshold)
	}
	return nil
}

func validateRarity(r domain.Rarity) error {
	switch r {
	case domain.RarityCommon, domain.RarityRare, domain.RarityEpic, domain.RarityLegendary:
		return nil
	}
	return invalid("unknown rarity %q", r)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

// ─── Built-in Tables ────────────────────────────────────────────────────────

var defaultLevels = []domain.LevelDefinition{
	{Level: 1, Name: "Rookie Dad", MinXP: 0, Icon: "🍼", Color: "#9CA3AF"},
	{Level: 2, Name: "Diaper Duty Dad", MinXP: 100, Icon: "🧷", Color: "#60A5FA"},
	{Level: 3, Name: "Grill Apprentice", MinXP: 250, Icon: "🔥", Color: "#F97316"},
	{Level: 4, Name: "Lawn Ranger", MinXP: 500, Icon: "🌱", Color: "#22C55E"},
	{Level: 5, Name: "Dad Joke Pro", MinXP: 1000, Icon: "😂", Color: "#EAB308"},
	{Level: 6, Name: "BBQ Master", MinXP: 2000, Icon: "🍖", Color: "#DC2626"},
	{Level: 7, Name: "Super Dad", MinXP: 3500, Icon: "🦸", Color: "#8B5CF6"},
	{Level: 8, Name: "Dad Legend", MinXP: 5500, Icon: "🏆", Color: "#F59E0B"},
	{Level: 9, Name: "Grand Dadmaster", MinXP: 8000, Icon: "👑", Color: "#EC4899"},
	{Level: 10, Name: "Ultimate Dad", MinXP: 12000, Icon: "⭐", Color: "#FACC15"},
}

func badge(id, name, icon, desc string, rarity domain.Rarity, dim domain.Dimension, threshold int64) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		ID: id, Name: name, Icon: icon, Description: desc, Rarity: rarity,
		Requirement: domain.Requirement{Dimension: dim, Threshold: threshold},
	}
}

var defaultBadges = []domain.BadgeDefinition{
	badge("first_post", "First Post", "✍️", "Shared your first post", domain.RarityCommon, domain.DimPosts, 1),
	badge("prolific_poster", "Prolific Poster", "📚", "Shared 25 posts", domain.RarityRare, domain.DimPosts, 25),
	badge("commenter", "Conversation Starter", "💬", "Left 10 comments", domain.RarityCommon, domain.DimComments, 10),
	badge("social_butterfly", "Social Butterfly", "🦋", "Made 10 dad friends", domain.RarityRare, domain.DimFriends, 10),
	badge("joke_master", "Joke Master", "🤣", "Told 25 dad jokes", domain.RarityEpic, domain.DimJokes, 25),
	badge("event_planner", "Event Planner", "📅", "Organized 5 events", domain.RarityRare, domain.DimEvents, 5),
	badge("group_leader", "Group Leader", "👥", "Joined or created 3 groups", domain.RarityCommon, domain.DimGroups, 3),
	badge("storyteller", "Storyteller", "📖", "Shared 10 stories", domain.RarityRare, domain.DimStories, 10),
	badge("reactor", "Hype Man", "👍", "Reacted 50 times", domain.RarityCommon, domain.DimReactions, 50),
	badge("week_warrior", "Week Warrior", "🔥", "Kept a 7-day streak", domain.RarityRare, domain.DimStreak, 7),
	badge("month_master", "Month Master", "🗓️", "Kept a 30-day streak", domain.RarityEpic, domain.DimStreak, 30),
	badge("xp_1000", "XP Grinder", "💪", "Earned 1,000 XP", domain.RarityRare, domain.DimXP, 1000),
	badge("level_5", "Halfway Hero", "🎖️", "Reached level 5", domain.RarityRare, domain.DimLevel, 5),
	badge("level_10", "Top of the Ladder", "🏅", "Reached level 10", domain.RarityLegendary, domain.DimLevel, 10),
	badge("legendary_dad", "Legendary Dad", "👑", "Earned 10,000 XP", domain.RarityLegendary, domain.DimXP, 10000),
}

func title(id, name, icon, desc string, rarity domain.Rarity, dim domain.Dimension, threshold int64, cond string) domain.TitleDefinition {
	return domain.TitleDefinition{
		ID: id, Name: name, Icon: icon, Description: desc, Rarity: rarity,
		Requirement: domain.Requirement{Dimension: dim, Threshold: threshold, Condition: cond},
	}
}

var defaultTitles = []domain.TitleDefinition{
	title("early_adopter", "Early Adopter", "🚀", "Joined during the beta", domain.RarityEpic, domain.DimSpecial, 0, "joined_beta"),
	title("founding_father", "Founding Father", "🏛️", "One of the first hundred dads", domain.RarityLegendary, domain.DimSpecial, 0, "first_100"),
	title("grill_sergeant", "Grill Sergeant", "🍔", "Reached level 3", domain.RarityCommon, domain.DimLevel, 3, ""),
	title("joke_dad", "The Joke Dad", "🃏", "Told 10 dad jokes", domain.RarityCommon, domain.DimJokes, 10, ""),
	title("social_dad", "Social Dad", "🤝", "Made 5 dad friends", domain.RarityCommon, domain.DimFriends, 5, ""),
	title("streak_keeper", "Streak Keeper", "⚡", "Kept a 7-day streak", domain.RarityRare, domain.DimStreak, 7, ""),
	title("storyteller", "The Storyteller", "📜", "Shared 5 stories", domain.RarityRare, domain.DimStories, 5, ""),
	title("dad_of_the_year", "Dad of the Year", "🏆", "Earned 5,000 XP", domain.RarityLegendary, domain.DimXP, 5000, ""),
}

var defaultQuests = []domain.QuestDefinition{
	{ID: "make_friend", Category: domain.QuestSocial, Title: "Make a Friend", Description: "Connect with another dad", Action: domain.XPFriendAdded, Target: 1, RewardXP: 30},
	{ID: "comment_3", Category: domain.QuestSocial, Title: "Chatty Dad", Description: "Comment on 3 posts", Action: domain.XPCommentAdded, Target: 3, RewardXP: 20},
	{ID: "react_5", Category: domain.QuestSocial, Title: "Spread the Love", Description: "React to 5 posts", Action: domain.XPReactionGiven, Target: 5, RewardXP: 15},
	{ID: "post_1", Category: domain.QuestContent, Title: "Share Something", Description: "Create a post", Action: domain.XPPostCreated, Target: 1, RewardXP: 20},
	{ID: "joke_1", Category: domain.QuestContent, Title: "Joke of the Day", Description: "Post a dad joke", Action: domain.XPJokePosted, Target: 1, RewardXP: 15},
	{ID: "story_1", Category: domain.QuestContent, Title: "Story Time", Description: "Share a story", Action: domain.XPStoryShared, Target: 1, RewardXP: 20},
	{ID: "photo_2", Category: domain.QuestContent, Title: "Say Cheese", Description: "Upload 2 photos", Action: domain.XPPhotoUploaded, Target: 2, RewardXP: 20},
	{ID: "checkin", Category: domain.QuestActivity, Title: "Show Up", Description: "Check in today", Action: domain.XPDailyLogin, Target: 1, RewardXP: 10},
	{ID: "event_1", Category: domain.QuestActivity, Title: "Get Out There", Description: "Attend an event", Action: domain.XPEventAttended, Target: 1, RewardXP: 25},
	{ID: "chore_3", Category: domain.QuestActivity, Title: "Honey-Do List", Description: "Complete 3 chores", Action: domain.XPChoreCompleted, Target: 3, RewardXP: 30},
	{ID: "group_1", Category: domain.QuestActivity, Title: "Join the Crew", Description: "Join a group", Action: domain.XPGroupJoined, Target: 1, RewardXP: 20},
}
