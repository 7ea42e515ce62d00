package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBlameCmd() *cobra.Command {
	var (
		rev           string
		porcelain     bool
		linePorcelain bool
		incremental   bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Show human/AI attribution per line, git-blame style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := BlameOptions{
				Rev:    rev,
				Format: resolveBlameFormat(porcelain, linePorcelain, incremental, jsonOutput),
			}
			out, err := Blame(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&rev, "rev", "", "Blame as of a specific commit instead of HEAD")
	cmd.Flags().BoolVarP(&porcelain, "porcelain", "p", false, "Machine-readable porcelain output")
	cmd.Flags().BoolVarP(&linePorcelain, "line-porcelain", "l", false, "Porcelain output repeated in full for every line")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Stream blame entries as they resolve")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit structured JSON output")

	return cmd
}

func resolveBlameFormat(porcelain, linePorcelain, incremental, jsonOutput bool) BlameFormat {
	switch {
	case jsonOutput:
		return BlameJSON
	case incremental:
		return BlameIncremental
	case linePorcelain:
		return BlameLinePorcelain
	case porcelain:
		return BlamePorcelain
	default:
		return BlameDefault
	}
}
