package events

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikroWizard/mikroman/cmd/mikroctl/output"
	"github.com/MikroWizard/mikroman/cmd/mikroctl/root"
	"github.com/MikroWizard/mikroman/internal/audit"
)

var (
	limit  int
	offset int
)

func init() {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect device state events",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent events, newest first",
		RunE:  runList,
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	eventsCmd.AddCommand(listCmd)
	root.GetRoot().AddCommand(eventsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	database, err := root.ConnectDB()
	if err != nil {
		return err
	}
	defer database.Close()

	events, err := audit.NewEventRepo(database).List(context.Background(), limit, offset)
	if err != nil {
		return err
	}

	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		status := "open"
		if e.Status != 0 {
			status = "fixed"
		}
		rows = append(rows, []interface{}{
			e.ID, e.DeviceID, e.Detail, e.Level, status,
			e.Comment, e.Created.Format("2006-01-02 15:04:05"),
		})
	}
	output.RenderTable(
		[]string{"ID", "Device", "Detail", "Level", "Status", "Comment", "When"},
		rows)
	fmt.Printf("%d event(s)\n", len(events))
	return nil
}
