package cmd

import (
	"log"

	"github.com/jdvries/listkeeper/listkeeper"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the ListKeeper bot and status API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			lk, err := listkeeper.New(cfg)
			if err != nil {
				log.Fatalf("error creating listkeeper: %s", err.Error())
			}

			if err = lk.Run(ctx); err != nil {
				log.Fatalf("error running listkeeper: %s", err.Error())
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
