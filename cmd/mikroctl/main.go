package main

import (
	"fmt"
	"os"

	"github.com/MikroWizard/mikroman/cmd/mikroctl/root"

	// Subcommands register themselves on the root command.
	_ "github.com/MikroWizard/mikroman/cmd/mikroctl/accounting"
	_ "github.com/MikroWizard/mikroman/cmd/mikroctl/events"
	_ "github.com/MikroWizard/mikroman/cmd/mikroctl/migrate"
	_ "github.com/MikroWizard/mikroman/cmd/mikroctl/sessions"
)

func main() {
	if err := root.GetRoot().Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
