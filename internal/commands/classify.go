package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
)

func newClassifyCommand(_ *app) *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "classify <text>...",
		Short: "Print the intent of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if intent.IsMeaningless(text) {
				fmt.Fprintln(out, "meaningless")
				return nil
			}
			fmt.Fprintln(out, intent.Detect(text, nil))

			if explain {
				signals := intent.Default.Scan(strings.TrimSpace(text))
				for sig, n := range signals {
					if n > 0 {
						fmt.Fprintf(out, "  %s: %d\n", intent.Signal(sig), n)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "also print how many patterns of each kind matched")
	return cmd
}
