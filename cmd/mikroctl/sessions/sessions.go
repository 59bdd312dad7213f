package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikroWizard/mikroman/cmd/mikroctl/output"
	"github.com/MikroWizard/mikroman/cmd/mikroctl/root"
	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/models"
)

var (
	limit  int
	offset int
	devID  int64
)

func init() {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the login audit trail",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent session records, newest first",
		RunE:  runList,
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "List sessions still open on one device",
		RunE:  runOpen,
	}
	openCmd.Flags().Int64Var(&devID, "device", 0, "device id (required)")
	openCmd.MarkFlagRequired("device")

	sessionsCmd.AddCommand(listCmd, openCmd)
	root.GetRoot().AddCommand(sessionsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	database, err := root.ConnectDB()
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, err := audit.NewAuthRepo(database).List(context.Background(), limit, offset)
	if err != nil {
		return err
	}
	render(sessions)
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	database, err := root.ConnectDB()
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, err := audit.NewAuthRepo(database).Open(context.Background(), devID)
	if err != nil {
		return err
	}
	render(sessions)
	return nil
}

func render(sessions []models.AuthSession) {
	rows := make([][]interface{}, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []interface{}{
			s.ID, s.DeviceID, s.Kind, s.Username, s.IP, s.By,
			s.SessionID, epoch(s.Started), epoch(s.Ended), s.Message,
		})
	}
	output.RenderTable(
		[]string{"ID", "Device", "Kind", "User", "From", "Via", "Session", "Started", "Ended", "Message"},
		rows)
	fmt.Printf("%d record(s)\n", len(sessions))
}

func epoch(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}
