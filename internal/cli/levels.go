package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dadbase/dadbase/internal/app/progression"
	"github.com/dadbase/dadbase/internal/daemon"
)

func init() {
	rootCmd.AddCommand(levelsCmd, badgesCmd)
}

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Show the level table",
	Args:  cobra.NoArgs,
	RunE:  runLevels,
}

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "Show the badge catalog",
	Args:  cobra.NoArgs,
	RunE:  runBadges,
}

// loadCatalog reads the configured catalog without opening the store.
func loadCatalog() (*progression.Catalog, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return progression.LoadCatalog(cfg.Progression.CatalogFile)
}

func runLevels(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cat.Levels)
	}

	w := newTable()
	fmt.Fprintln(w, "LEVEL\tNAME\tMIN XP")
	for _, l := range cat.Levels {
		fmt.Fprintf(w, "%d\t%s %s\t%d\n", l.Level, l.Icon, l.Name, l.MinXP)
	}
	return w.Flush()
}

func runBadges(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cat.Badges)
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tBADGE\tRARITY\tREQUIREMENT")
	for _, b := range cat.Badges {
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s >= %d\n",
			b.ID, b.Icon, b.Name, b.Rarity, b.Requirement.Dimension, b.Requirement.Threshold)
	}
	return w.Flush()
}
