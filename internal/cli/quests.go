package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dadbase/dadbase/internal/domain"
)

func init() {
	questsCmd.Flags().BoolVar(&questReroll, "reroll", false, "Replace today's quests with a fresh roll")
	questProgressCmd.Flags().IntVar(&questDelta, "delta", 1, "Progress to add")
	questsCmd.AddCommand(questProgressCmd, questClaimCmd)
	rootCmd.AddCommand(questsCmd, rolloverCmd)
}

var (
	questReroll bool
	questDelta  int
)

var questsCmd = &cobra.Command{
	Use:   "quests USER_ID",
	Short: "Show today's daily quests",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuests,
}

var questProgressCmd = &cobra.Command{
	Use:   "progress USER_ID QUEST_ID",
	Short: "Advance a quest",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuestProgress,
}

var questClaimCmd = &cobra.Command{
	Use:   "claim USER_ID QUEST_ID",
	Short: "Claim a completed quest's reward",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuestClaim,
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Purge quest rows from earlier days now",
	Args:  cobra.NoArgs,
	RunE:  runRollover,
}

func runQuests(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	var quests []domain.QuestProgress
	if questReroll {
		quests, err = d.Engine.RollDailyQuests(ctx, args[0])
	} else {
		quests, err = d.Engine.DailyQuests(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(quests)
	}
	printQuests(quests)
	return nil
}

func runQuestProgress(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	q, err := d.Engine.RecordQuestProgress(context.Background(), args[0], args[1], questDelta)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(q)
	}
	printQuests([]domain.QuestProgress{q})
	return nil
}

func runQuestClaim(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.ClaimQuest(context.Background(), args[0], args[1])
	if err != nil && !res.Claimed {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	if !res.Claimed {
		fmt.Printf("%s was already claimed.\n", res.Quest.Quest.Title)
		return nil
	}
	fmt.Printf("Claimed:      %s (+%d XP)\n", res.Quest.Quest.Title, res.XP)
	if res.LeveledUp {
		fmt.Println("Level up!")
	}
	printNewBadges(res.NewBadges)
	return err
}

func runRollover(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.Engine.PurgeStaleQuests(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d stale quest rows.\n", n)
	return nil
}

func printQuests(quests []domain.QuestProgress) {
	w := newTable()
	fmt.Fprintln(w, "ID\tCATEGORY\tQUEST\tPROGRESS\tREWARD\tSTATUS")
	for _, q := range quests {
		status := "open"
		switch {
		case q.ClaimedAt != nil:
			status = "claimed"
		case q.Completed:
			status = "ready to claim"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %d/%d\t%d XP\t%s\n",
			q.Quest.ID, q.Quest.Category, q.Quest.Title,
			progressBar(int(q.ProgressPct()), 10), q.Progress, q.Quest.Target,
			q.Quest.RewardXP, status)
	}
	w.Flush()
}
