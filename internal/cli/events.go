package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var eventsRunID string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the recorded phase trail of a flow run",
	Run:   runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsRunID, "run", "", "flow run ID")
	_ = eventsCmd.MarkFlagRequired("run")
}

func runEvents(cmd *cobra.Command, args []string) {
	app, _, err := setup()
	if err != nil {
		os.Exit(1)
	}
	defer shutdown(app)

	events, err := app.JournalEvents(context.Background(), eventsRunID)
	if err != nil {
		slog.Error("Failed to read flow journal", "run", eventsRunID, "error", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		slog.Info("No recorded events for run", "run", eventsRunID)
		return
	}
	for _, e := range events {
		fmt.Println(e)
	}
}
