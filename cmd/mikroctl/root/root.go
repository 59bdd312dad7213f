package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "mikroctl",
	Short: "MikroWizard AAA operations CLI",
	Long:  "Inspect audit sessions, accounting records and device events, and run database migrations.",
}

// GetRoot returns the shared root command subpackages register on.
func GetRoot() *cobra.Command {
	return RootCmd
}
