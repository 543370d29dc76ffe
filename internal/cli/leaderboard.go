package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dadbase/dadbase/internal/domain"
)

func init() {
	leaderboardCmd.Flags().StringVar(&boardType, "type", "allTime", "weekly, monthly or allTime")
	leaderboardCmd.Flags().StringVar(&boardUser, "user", "", "Highlight this user's rank")
	rootCmd.AddCommand(leaderboardCmd)
}

var (
	boardType string
	boardUser string
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"top"},
	Short:   "Show the XP leaderboard",
	Args:    cobra.NoArgs,
	RunE:    runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	typ, err := domain.ParseLeaderboardType(boardType)
	if err != nil {
		return err
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	board, err := d.Engine.FetchLeaderboard(context.Background(), typ, boardUser)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(board)
	}
	if len(board.Entries) == 0 {
		fmt.Println("Nobody on the board yet.")
		return nil
	}

	w := newTable()
	fmt.Fprintln(w, "RANK\tNAME\tLEVEL\tXP\t")
	for _, e := range board.Entries {
		you := ""
		if e.IsYou {
			you = "<- you"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", e.Rank, e.Name, e.Level, e.XP, you)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if boardUser != "" && !board.RankKnown {
		fmt.Printf("%s is outside the top %d.\n", boardUser, len(board.Entries))
	}
	return nil
}
