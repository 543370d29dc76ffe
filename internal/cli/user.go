package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	userCmd.Flags().StringVar(&userName, "name", "", "Display name (creates the user if missing)")
	userCmd.Flags().StringVar(&userAvatar, "avatar", "", "Avatar URL")
	rootCmd.AddCommand(userCmd)
}

var (
	userName   string
	userAvatar string
)

var userCmd = &cobra.Command{
	Use:   "user USER_ID",
	Short: "Show a user's level, badges and streak",
	Args:  cobra.ExactArgs(1),
	RunE:  runUser,
}

func runUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if userName != "" || userAvatar != "" {
		if _, err := d.Engine.EnsureUser(ctx, args[0], userName, userAvatar); err != nil {
			return err
		}
	}

	s, err := d.Engine.Summary(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	fmt.Printf("User:         %s (%s)\n", s.User.Name, s.User.UserID)
	fmt.Printf("Level:        %d %s %s\n", s.Level.Level, s.Level.Icon, s.Level.Name)
	fmt.Printf("XP:           %d\n", s.User.XP)
	if s.NextLevel != nil {
		fmt.Printf("Next level:   %s %3d%%  %d XP to %s\n",
			progressBar(s.ProgressPercent, 20), s.ProgressPercent, s.XPToNextLevel, s.NextLevel.Name)
	} else {
		fmt.Printf("Next level:   max level reached\n")
	}
	fmt.Printf("Streak:       %d days (longest %d, freezes %d)\n",
		s.Streak.CurrentStreak, s.Streak.LongestStreak, s.Streak.StreakFreezes)

	badges := make([]string, 0, len(s.Badges))
	for _, b := range s.Badges {
		badges = append(badges, b.Icon+" "+b.Name)
	}
	if len(badges) == 0 {
		badges = append(badges, "none yet")
	}
	fmt.Printf("Badges:       %s\n", strings.Join(badges, ", "))

	active := s.User.ActiveTitle
	if active == "" {
		active = "none"
	}
	fmt.Printf("Title:        %s\n", active)
	return nil
}
