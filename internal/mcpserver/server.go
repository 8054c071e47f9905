// Package mcpserver exposes a topic map over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/jtm"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/topicmap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tools holds the tool handlers for one topic map.
type Tools struct {
	m   *topicmap.TopicMap
	fs  billy.Filesystem
	log *zap.Logger
}

// NewTools returns the handlers for m. JTM files are read from fsys.
func NewTools(m *topicmap.TopicMap, fsys billy.Filesystem, log *zap.Logger) *Tools {
	return &Tools{m: m, fs: fsys, log: logger.OrNop(log)}
}

// New creates the MCP server with every tool registered.
func New(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"tmengine",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.AddTool(mcp.NewTool("lookup_topic",
		mcp.WithDescription("Look a topic up by identity and return it with its names, occurrences and roles."),
		mcp.WithString("identity", mcp.Required(), mcp.Description("IRI of the subject identifier, subject locator or item identifier")),
		mcp.WithString("kind", mcp.Description("si, sl or ii (default si)")),
	), t.LookupTopic)

	s.AddTool(mcp.NewTool("merge_topics",
		mcp.WithDescription("Merge the source topic into the target topic. The source stops existing."),
		mcp.WithNumber("target", mcp.Required(), mcp.Description("id of the surviving topic")),
		mcp.WithNumber("source", mcp.Required(), mcp.Description("id of the topic merged away")),
	), t.MergeTopics)

	s.AddTool(mcp.NewTool("add_identity",
		mcp.WithDescription("Add an identity to a construct. A collision with another topic merges the two when automerge is on."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("construct id")),
		mcp.WithString("identity", mcp.Required(), mcp.Description("IRI to add")),
		mcp.WithString("kind", mcp.Description("si, sl or ii (default si)")),
	), t.AddIdentity)

	s.AddTool(mcp.NewTool("import_jtm",
		mcp.WithDescription("Import a JTM 1.0 document into the topic map."),
		mcp.WithString("path", mcp.Required(), mcp.Description("path of the .jtm file")),
	), t.ImportJTM)

	return s
}

const instructions = `This server holds one topic map. Topics are identified by IRIs
(subject identifiers "si", subject locators "sl", item identifiers "ii").
Use lookup_topic to find a topic, merge_topics to merge two topics that
describe the same subject, add_identity to attach an IRI (which may merge
topics), and import_jtm to load a JTM document.`

// LookupTopic handles lookup_topic.
func (t *Tools) LookupTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	value, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := construct.ParseIdentityKind(req.GetString("kind", "si"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var ref construct.Ref
	switch kind {
	case construct.SubjectIdentifier:
		ref, err = t.m.TopicBySubjectIdentifier(ctx, value)
	case construct.SubjectLocator:
		ref, err = t.m.TopicBySubjectLocator(ctx, value)
	default:
		ref, err = t.m.ConstructByItemIdentifier(ctx, value)
	}
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return mcp.NewToolResultError(fmt.Sprintf("no topic with %s %s", kind, value)), nil
	}
	if ref.Kind != construct.KindTopic {
		return mcp.NewToolResultError(fmt.Sprintf("%s identifies %s, not a topic", value, ref)), nil
	}
	view, err := t.m.Topic(ctx, ref)
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

// MergeTopics handles merge_topics.
func (t *Tools) MergeTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireInt("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireInt("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.m.MergeTopic(ctx, construct.Topic(int64(target)), construct.Topic(int64(source))); err != nil {
		return toolError(err)
	}
	t.log.Info("merged topics via MCP", zap.Int("target", target), zap.Int("source", source))
	view, err := t.m.Topic(ctx, construct.Topic(int64(target)))
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

// AddIdentity handles add_identity.
func (t *Tools) AddIdentity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := construct.ParseIdentityKind(req.GetString("kind", "si"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k, err := t.m.Kind(ctx, int64(id))
	if err != nil {
		return toolError(err)
	}
	if err := t.m.AddIdentity(ctx, construct.Ref{Kind: k, ID: int64(id)}, value, kind); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("added %s %s to %s:%d", kind, value, k, id)), nil
}

// ImportJTM handles import_jtm.
func (t *Tools) ImportJTM(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := jtm.NewReader(t.m.Locator(), t.log).ReadFile(ctx, t.fs, path, t.m)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// toolError turns engine errors a caller can act on into tool errors and
// passes everything else through as a protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	var (
		ice *tmerr.IdentityConstraintError
		mcv *tmerr.ModelConstraintViolation
		tiu *tmerr.TopicInUse
	)
	switch {
	case errors.Is(err, tmerr.ErrNotFound),
		errors.As(err, &ice),
		errors.As(err, &mcv),
		errors.As(err, &tiu):
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
