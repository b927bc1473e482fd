package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cleanupDays  int
	cleanupAll   bool
	forceCleanup bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old builds from history",
	Long: `Delete builds older than the retention window (retention.days, or
--days). With --all every build is removed.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention window in days (default: retention.days)")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "delete every build")
	cleanupCmd.Flags().BoolVarP(&forceCleanup, "force", "f", false, "Skip confirmation prompt")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cleanupAll && cmd.Flags().Changed("days") {
		return fmt.Errorf("--all and --days are mutually exclusive")
	}

	days := cfg.Retention.Days
	if cmd.Flags().Changed("days") {
		days = cleanupDays
	}

	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	var question string
	if cleanupAll {
		question = "Are you sure you want to delete ALL builds? [y/N] "
	} else {
		question = fmt.Sprintf("Are you sure you want to delete builds older than %d days? [y/N] ", days)
	}

	if !forceCleanup {
		ok, err := confirm(question)
		if err != nil {
			return err
		}

		if !ok {
			log.Info("Cleanup cancelled")

			return nil
		}
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	if cleanupAll {
		if err := st.CleanDatabase(ctx); err != nil {
			return err
		}

		log.Info("All builds deleted")

		return nil
	}

	deleted, err := st.Cleanup(ctx, days)
	if err != nil {
		return err
	}

	log.WithField("deleted", deleted).WithField("days", days).Info("Cleanup completed")

	return nil
}

// confirm prompts on stdin. Non-interactive sessions must pass --force.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; use --force to skip confirmation")
	}

	fmt.Print(question)

	reader := bufio.NewReader(os.Stdin)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))

	return response == "y" || response == "yes", nil
}
