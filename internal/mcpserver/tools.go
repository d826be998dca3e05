package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

// Tool names.
const (
	ToolListMacros  = "list_macros"
	ToolExpandMacro = "expand_macro"
)

// Backend runs the calls behind the tools. *procmacro.Client implements it.
type Backend interface {
	ListMacros(ctx context.Context, lib string) ([]msg.Macro, error)
	Expand(ctx context.Context, lib, name string, subtree, attrs *tt.Subtree) (*tt.Subtree, error)
}

type listArgs struct {
	Lib  string `json:"lib"`
	Kind string `json:"kind,omitempty"`
}

type expandArgs struct {
	Lib        string          `json:"lib"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// macroEntry is the list_macros output element.
type macroEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// New returns a server with the proc-macro tools registered against b.
func New(b Backend, version string, log *slog.Logger) *Server {
	s := NewServer("procmacro", version, log)

	s.AddTool(
		NewTool(ToolListMacros, "List the procedural macros exported by a compiled proc-macro library.",
			msg.ObjectSchema([]string{"lib"}, map[string]*jsonschema.Schema{
				"lib": {Type: "string", Description: "Path of the proc-macro dynamic library."},
				"kind": {
					Type:        "string",
					Description: "Only list macros of this kind.",
					Enum:        []any{string(msg.KindCustomDerive), string(msg.KindFuncLike), string(msg.KindAttr)},
				},
			})),
		listMacros(b, s.log),
	)

	s.AddTool(
		NewTool(ToolExpandMacro, "Run a procedural macro on a token tree and return the expansion.",
			msg.ObjectSchema([]string{"lib", "name", "input"}, map[string]*jsonschema.Schema{
				"lib":        {Type: "string", Description: "Path of the proc-macro dynamic library."},
				"name":       {Type: "string", Description: "Name of the macro."},
				"input":      msg.SubtreeRef(),
				"attributes": {AnyOf: []*jsonschema.Schema{{Type: "null"}, msg.SubtreeRef()}},
			})),
		expandMacro(b, s.log),
	)

	return s
}

func listMacros(b Backend, log *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args listArgs
		if err := parseArguments(req, &args); err != nil {
			return ErrorResult(err.Error()), nil
		}

		if args.Lib == "" {
			return ErrorResult("lib is required"), nil
		}

		macros, err := b.ListMacros(ctx, args.Lib)
		if err != nil {
			log.Warn("list_macros failed", "lib", args.Lib, "error", err)

			return ErrorResult(err.Error()), nil
		}

		entries := make([]macroEntry, 0, len(macros))

		for _, m := range macros {
			if args.Kind != "" && string(m.Kind) != args.Kind {
				continue
			}

			entries = append(entries, macroEntry{Name: m.Name, Kind: string(m.Kind)})
		}

		data, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshal macros: %w", err)
		}

		return TextResult(string(data)), nil
	}
}

func expandMacro(b Backend, log *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args expandArgs
		if err := parseArguments(req, &args); err != nil {
			return ErrorResult(err.Error()), nil
		}

		if args.Lib == "" || args.Name == "" {
			return ErrorResult("lib and name are required"), nil
		}

		input, err := decodeSubtree(args.Input)
		if err != nil {
			return ErrorResult("input: " + err.Error()), nil
		}

		var attrs *tt.Subtree

		if len(args.Attributes) > 0 && string(args.Attributes) != "null" {
			if attrs, err = decodeSubtree(args.Attributes); err != nil {
				return ErrorResult("attributes: " + err.Error()), nil
			}
		}

		out, err := b.Expand(ctx, args.Lib, args.Name, input, attrs)
		if err != nil {
			log.Warn("expand_macro failed", "lib", args.Lib, "name", args.Name, "error", err)

			return ErrorResult(err.Error()), nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal expansion: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(data)},
				&mcp.TextContent{Text: out.String()},
			},
		}, nil
	}
}

// decodeSubtree validates raw against the Subtree schema before decoding it.
func decodeSubtree(raw json.RawMessage) (*tt.Subtree, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing token tree")
	}

	if err := msg.Validate("Subtree", raw); err != nil {
		return nil, err
	}

	var s tt.Subtree
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}

	return &s, nil
}
