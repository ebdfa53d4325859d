package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loremaster/internal/export"
	"loremaster/internal/transcript"
)

func newExportCmd() *cobra.Command {
	var format string
	var input string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-serialize a saved transcript into an interchange format",
		Long:  "Reads a serialized transcript (an autosave snapshot) and writes the chosen interchange encoding to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			store := transcript.NewStore()
			if err := store.Deserialize(data); err != nil {
				return err
			}
			out, err := export.Encode(export.Format(format), store.All(), nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatPlainPairs), "export format: plain-pairs, filtered-pairs, threaded, dialogue-pairs")
	cmd.Flags().StringVarP(&input, "input", "i", "data/transcript.json", "path to a serialized transcript")
	return cmd
}
