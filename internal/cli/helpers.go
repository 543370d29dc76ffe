package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dadbase/dadbase/internal/daemon"
)

// openDaemon loads config and wires the local store and engine.
func openDaemon() (*daemon.Daemon, error) {
	return daemon.New()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// progressBar renders pct (0-100) as [=====>....].
func progressBar(pct int, width int) string {
	pct = max(0, min(100, pct))
	filled := pct * width / 100
	switch {
	case filled >= width:
		return "[" + strings.Repeat("=", width) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", width-filled) + "]"
	}
	return "[" + strings.Repeat(".", width) + "]"
}

func printNewBadges(badges []string) {
	if len(badges) > 0 {
		fmt.Printf("New badges:   %s\n", strings.Join(badges, ", "))
	}
}
