package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dadbase/dadbase/internal/domain"
)

func init() {
	grantCmd.Flags().Float64Var(&grantMultiplier, "multiplier", 1, "XP multiplier (>= 0)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries")
	rootCmd.AddCommand(grantCmd, trackCmd, historyCmd)
}

var (
	grantMultiplier float64
	historyLimit    int
)

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID REASON",
	Short: "Grant XP for a reason (post_created, referral_bonus, ...)",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrant,
}

var trackCmd = &cobra.Command{
	Use:   "track USER_ID ACTION",
	Short: "Record an action: counters, XP, quests and badges in one step",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrack,
}

var historyCmd = &cobra.Command{
	Use:   "history USER_ID",
	Short: "Show a user's most recent XP grants",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runGrant(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.GrantXP(context.Background(), args[0], domain.XPReason(args[1]), grantMultiplier)
	if err != nil && res.Grant.ID == "" {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("Granted:      +%d XP (%s)\n", res.Grant.Amount, res.Grant.Reason)
	fmt.Printf("Total:        %d XP, level %d\n", res.Change.NewXP, res.Change.NewLevel)
	if res.LeveledUp() {
		fmt.Printf("Level up:     %d -> %d\n", res.Change.OldLevel, res.Change.NewLevel)
	}
	printNewBadges(res.NewBadges)
	return err
}

func runTrack(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.Track(context.Background(), args[0], domain.XPReason(args[1]))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("Action:       %s\n", res.Action)
	if res.Counter != "" {
		fmt.Printf("Count:        %s = %d\n", res.Counter, res.Count)
	}
	fmt.Printf("Earned:       +%d XP\n", res.XP)
	if res.LeveledUp {
		fmt.Println("Level up!")
	}
	for _, q := range res.Quests {
		fmt.Printf("Quest:        %s %d/%d\n", q.Quest.Title, q.Progress, q.Quest.Target)
	}
	printNewBadges(res.NewBadges)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	grants, err := d.Engine.History(context.Background(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(grants)
	}
	if len(grants) == 0 {
		fmt.Println("No XP earned yet.")
		return nil
	}

	w := newTable()
	fmt.Fprintln(w, "WHEN\tREASON\tXP\tMULTIPLIER")
	for _, g := range grants {
		fmt.Fprintf(w, "%s\t%s\t+%d\t%.2f\n",
			g.CreatedAt.Format("2006-01-02 15:04"), g.Reason, g.Amount, g.Multiplier)
	}
	return w.Flush()
}
