package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty data file at the configured path",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		if _, err := os.Stat(cfg.DataFile); err == nil {
			fmt.Fprintf(out, "Data file already exists: %s\n", cfg.DataFile)
			return
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Error checking data file: %v", err)
		}

		doc := map[string]any{
			"list_data": []any{},
			"state_data": map[string]any{
				"channel_list_states": map[string]any{},
			},
		}
		data, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			log.Fatalf("Error serializing data file: %v", err)
		}
		if err = os.WriteFile(cfg.DataFile, data, 0o644); err != nil {
			log.Fatalf("Error writing data file: %v", err)
		}

		fmt.Fprintf(out, "Created data file: %s\n", cfg.DataFile)
		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
