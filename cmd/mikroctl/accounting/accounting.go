package accounting

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
	accountingCmd := &cobra.Command{
		Use:   "accounting",
		Short: "Inspect config-change accounting records",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent config changes, newest first",
		RunE:  runList,
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	accountingCmd.AddCommand(listCmd)
	root.GetRoot().AddCommand(accountingCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	database, err := root.ConnectDB()
	if err != nil {
		return err
	}
	defer database.Close()

	entries, err := audit.NewAccountRepo(database).List(context.Background(), limit, offset)
	if err != nil {
		return err
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.ID, e.DeviceID, e.Username, e.Action, e.Section,
			e.CType, e.Address, e.Created.Format("2006-01-02 15:04:05"),
		})
	}
	output.RenderTable(
		[]string{"ID", "Device", "User", "Action", "Section", "Conn", "From", "When"},
		rows)
	fmt.Printf("%d record(s)\n", len(entries))
	return nil
}
