package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathanrlemos/ezbackup/config"
)

// newConfigureCmd writes the merged Options straight to the config file
// without running a backup, for setting up defaults ahead of time.
func newConfigureCmd() *cobra.Command {
	f := &runFlags{}
	var savePassword bool
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Persist default backup settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(f)
			if err != nil {
				return err
			}
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			if err := config.Save(path, opts, savePassword); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().BoolVar(&savePassword, "save-password", false, "persist the encryption password in the config file (discouraged)")
	return cmd
}
