package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/jtm"
)

var importBase string

var importCmd = &cobra.Command{
	Use:   "import [file.jtm...]",
	Short: "Import JTM 1.0 documents into the topic map",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		base := importBase
		if base == "" {
			base = s.tm.Locator()
		}
		reader := jtm.NewReader(base, s.log)

		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			fsys := osfs.New(filepath.Dir(abs))

			start := time.Now()
			res, err := reader.ReadFile(ctx, fsys, filepath.Base(abs), s.tm)
			if err != nil {
				return err
			}
			s.log.Debug("import finished", zap.String("file", arg), zap.Duration("took", time.Since(start)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d topics, %d names, %d occurrences, %d associations (%v)\n",
				arg, res.Topics, res.Names, res.Occurrences, res.Associations, time.Since(start).Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importBase, "base", "", "Base locator for relative item identifiers (default: topic map locator)")
	rootCmd.AddCommand(importCmd)
}
