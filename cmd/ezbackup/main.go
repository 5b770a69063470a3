// Command ezbackup is the CLI entry point: backup, restore, configure,
// and mount subcommands over the same Options the config package
// persists, in the spirit of the teacher's single-binary cmd/bk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ezbackup",
		Short:   "Incremental, encrypted backup",
		Version: version,
	}
	root.AddCommand(newBackupCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newConfigureCmd())
	root.AddCommand(newMountCmd())
	root.AddCommand(newFormatDocCmd())
	return root
}

const version = "0.1.0"
