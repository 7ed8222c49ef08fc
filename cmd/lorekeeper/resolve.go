package lorekeeper

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/lorekeeper"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>...",
	Short: "Show the canonical name each raw name resolves to",
	Long: `Resolve looks up each name in the resolution store and prints the canonical
name it maps onto. Nothing is registered unless --register is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().Bool("register", false, "register names that have no match as new canonical names")
}

func runResolve(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	res, closer, err := lorekeeper.OpenResolver(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	register, _ := cmd.Flags().GetBool("register")
	out := cmd.OutOrStdout()
	for _, raw := range args {
		if register {
			name, err := res.Resolve(cmd.Context(), raw)
			if err != nil {
				return fmt.Errorf("failed to resolve %q: %w", raw, err)
			}
			fmt.Fprintf(out, "%s -> %s\n", raw, name)
			continue
		}

		name, found, err := res.Lookup(cmd.Context(), raw)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", raw, err)
		}
		if !found {
			fmt.Fprintf(out, "%s: no match above threshold %.2f\n", raw, res.Threshold())
			continue
		}
		fmt.Fprintf(out, "%s -> %s\n", raw, name)
	}
	return nil
}
