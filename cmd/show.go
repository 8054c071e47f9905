package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
)

var showCmd = &cobra.Command{
	Use:   "show [ref]",
	Short: "Print a topic, name or association as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		ref, err := resolveRef(ctx, s.tm, args[0])
		if err != nil {
			return err
		}

		var v any
		switch ref.Kind {
		case construct.KindTopic:
			v, err = s.tm.Topic(ctx, ref)
		case construct.KindName:
			v, err = s.tm.Name(ctx, ref)
		case construct.KindAssociation:
			v, err = s.tm.Association(ctx, ref)
		default:
			return fmt.Errorf("cannot show %s", ref)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
