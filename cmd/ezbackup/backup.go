package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathanrlemos/ezbackup/backup"
	u "github.com/jonathanrlemos/ezbackup/util"
)

func newBackupCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run an incremental backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(f)
			if err != nil {
				return err
			}
			log := u.NewLogger(!opts.Quiet, false)

			o := backup.New(log)
			res, err := o.Run(context.Background(), opts)
			for _, w := range res.Warnings {
				log.Warning("%v", w)
			}
			if err != nil {
				return err
			}
			if !opts.Quiet {
				fmt.Printf("wrote %s (%d scanned, %d added, %d removed)\n",
					res.ArchivePath, res.FilesScanned, res.FilesAdded, res.FilesRemoved)
			}
			return nil
		},
	}
	addRunFlags(cmd, f)
	return cmd
}
