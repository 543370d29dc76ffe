package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	titlesCmd.Flags().StringVar(&titleSet, "set", "", "Make this title active")
	titlesCmd.Flags().BoolVar(&titleClear, "clear", false, "Clear the active title")
	titlesCmd.Flags().StringVar(&titleGrant, "grant", "", "Grant a special title out of band")
	rootCmd.AddCommand(titlesCmd)
}

var (
	titleSet   string
	titleClear bool
	titleGrant string
)

var titlesCmd = &cobra.Command{
	Use:   "titles USER_ID",
	Short: "List, set or grant titles",
	Args:  cobra.ExactArgs(1),
	RunE:  runTitles,
}

func runTitles(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	userID := args[0]

	if titleGrant != "" {
		added, err := d.Engine.GrantSpecialTitle(ctx, userID, titleGrant)
		if err != nil {
			return err
		}
		if added {
			fmt.Printf("Granted special title %s.\n", titleGrant)
		}
	}
	if titleSet != "" || titleClear {
		if err := d.Engine.SetActiveTitle(ctx, userID, titleSet); err != nil {
			return err
		}
	}

	titles, err := d.Engine.AvailableTitles(ctx, userID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(titles)
	}
	if len(titles) == 0 {
		fmt.Println("No titles unlocked yet.")
		return nil
	}

	summary, err := d.Engine.Summary(ctx, userID)
	if err != nil {
		return err
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tTITLE\tRARITY\t")
	for _, t := range titles {
		active := ""
		if t.ID == summary.User.ActiveTitle {
			active = "active"
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", t.ID, t.Icon, t.Name, t.Rarity, active)
	}
	return w.Flush()
}
