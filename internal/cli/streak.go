package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	freezeCmd.Flags().IntVar(&freezeAdd, "add", 0, "Top up this many freezes instead of using one")
	rootCmd.AddCommand(checkinCmd, freezeCmd)
}

var freezeAdd int

var checkinCmd = &cobra.Command{
	Use:   "checkin USER_ID",
	Short: "Record today's check-in and advance the streak",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckin,
}

var freezeCmd = &cobra.Command{
	Use:   "freeze USER_ID",
	Short: "Use a streak freeze, or top up with --add",
	Args:  cobra.ExactArgs(1),
	RunE:  runFreeze,
}

func runCheckin(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.CheckInToday(context.Background(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	if !res.Changed() {
		fmt.Printf("Already checked in today. Streak: %d days\n", res.Streak.CurrentStreak)
		return nil
	}
	fmt.Printf("Streak:       %d days (%s)\n", res.Streak.CurrentStreak, res.Transition)
	fmt.Printf("Earned:       +%d XP\n", res.XPEarned)
	if res.LeveledUp {
		fmt.Println("Level up!")
	}
	printNewBadges(res.NewBadges)
	return nil
}

func runFreeze(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	var n int
	if freezeAdd != 0 {
		n, err = d.Engine.AddStreakFreezes(ctx, args[0], freezeAdd)
	} else {
		n, err = d.Engine.UseStreakFreeze(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]int{"streak_freezes": n})
	}
	fmt.Printf("Streak freezes left: %d\n", n)
	return nil
}
