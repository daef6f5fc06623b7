package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wmitsuda/akula/internal/core/config"
	"github.com/wmitsuda/akula/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of the header archive",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("No database configured; status needs a persistent archive")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	var count int64
	var tip int64
	row := db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(MAX(number), 0) FROM headers")
	if err := row.Scan(&count, &tip); err != nil {
		slog.Error("Failed to query archive", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HEADERS\tTIP")
	_, _ = fmt.Fprintf(w, "%d\t%d\n", count, tip)
	_ = w.Flush()
}
