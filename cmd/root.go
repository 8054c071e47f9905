package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/config"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/topicmap"
)

var (
	configPath  string
	topicMapLoc string
	strict      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to HCL config file")
	rootCmd.PersistentFlags().StringVarP(&topicMapLoc, "topic-map", "m", "", "Locator of the topic map (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Fail on identity collisions instead of merging")
}

var rootCmd = &cobra.Command{
	Use:           "tmengine",
	Short:         "tmengine: a Topic Maps engine with automatic merging",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is what every subcommand works against.
type session struct {
	cfg *config.Config
	log *zap.Logger
	sys *topicmap.System
	tm  *topicmap.TopicMap
}

// open loads the configuration, opens the store and the selected topic map.
func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if topicMapLoc != "" {
		cfg.TopicMap = topicMapLoc
	}
	if strict {
		cfg.Automerge = false
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database, store.Options{LockFile: cfg.LockFile, Logger: log})
	if err != nil {
		logger.Sync(log)
		return nil, err
	}
	sys := topicmap.NewSystem(st, topicmap.WithLogger(log), topicmap.WithAutomerge(cfg.Automerge))
	tm, err := sys.OpenTopicMap(ctx, cfg.TopicMap)
	if err != nil {
		_ = sys.Close()
		logger.Sync(log)
		return nil, err
	}
	log.Debug("opened topic map",
		zap.String("database", cfg.Database),
		zap.String("topic_map", cfg.TopicMap),
		zap.Bool("automerge", cfg.Automerge))
	return &session{cfg: cfg, log: log, sys: sys, tm: tm}, nil
}

func (s *session) Close() {
	if err := s.sys.Close(); err != nil {
		s.log.Warn("failed to close store", zap.Error(err))
	}
	logger.Sync(s.log)
}

// resolveRef turns a command-line reference into a construct ref. Accepted
// forms: "si:<iri>", "sl:<iri>", "ii:<iri>", "<kind>:<id>" and a bare topic id.
func resolveRef(ctx context.Context, tm *topicmap.TopicMap, s string) (construct.Ref, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return construct.Ref{}, fmt.Errorf("invalid reference %q", s)
		}
		kind, err := tm.Kind(ctx, id)
		if err != nil {
			return construct.Ref{}, err
		}
		return construct.Ref{Kind: kind, ID: id}, nil
	}

	if kind, err := construct.ParseIdentityKind(prefix); err == nil {
		var ref construct.Ref
		switch kind {
		case construct.SubjectIdentifier:
			ref, err = tm.TopicBySubjectIdentifier(ctx, rest)
		case construct.SubjectLocator:
			ref, err = tm.TopicBySubjectLocator(ctx, rest)
		default:
			ref, err = tm.ConstructByItemIdentifier(ctx, rest)
		}
		if err != nil {
			return construct.Ref{}, err
		}
		if ref.IsZero() {
			return construct.Ref{}, fmt.Errorf("nothing is identified by %s", s)
		}
		return ref, nil
	}

	kind, err := construct.ParseKind(prefix)
	if err != nil {
		return construct.Ref{}, fmt.Errorf("invalid reference %q: %w", s, err)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return construct.Ref{}, fmt.Errorf("invalid reference %q", s)
	}
	return construct.Ref{Kind: kind, ID: id}, nil
}
