package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [target] [source]",
	Short: "Merge the source topic into the target topic",
	Long: `Merge the source topic into the target topic. References are
"si:<iri>", "sl:<iri>", "ii:<iri>", "topic:<id>" or a bare id.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		target, err := resolveRef(ctx, s.tm, args[0])
		if err != nil {
			return err
		}
		source, err := resolveRef(ctx, s.tm, args[1])
		if err != nil {
			return err
		}
		for _, r := range []construct.Ref{target, source} {
			if r.Kind != construct.KindTopic {
				return fmt.Errorf("%s is not a topic", r)
			}
		}
		if err := s.tm.MergeTopic(ctx, target, source); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s\n", source, target)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
