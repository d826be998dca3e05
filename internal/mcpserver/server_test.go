package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

type fakeBackend struct {
	macros []msg.Macro
	err    error

	gotLib   string
	gotName  string
	gotAttrs *tt.Subtree
}

func (f *fakeBackend) ListMacros(_ context.Context, lib string) ([]msg.Macro, error) {
	f.gotLib = lib

	return f.macros, f.err
}

func (f *fakeBackend) Expand(_ context.Context, lib, name string, subtree, attrs *tt.Subtree) (*tt.Subtree, error) {
	f.gotLib, f.gotName, f.gotAttrs = lib, name, attrs

	if f.err != nil {
		return nil, f.err
	}

	return tt.NewSubtree("", append([]tt.TokenTree{tt.Ident(name)}, subtree.TokenTrees...)...), nil
}

var _ Backend = (*fakeBackend)(nil)

func text(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()

	require.Greater(t, len(res.Content), i)

	tc, ok := res.Content[i].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[i])

	return tc.Text
}

func TestServerMetadataAndRegistry(t *testing.T) {
	s := New(&fakeBackend{}, "1.2.3", nil)

	require.Equal(t, "procmacro", s.Name())
	require.Equal(t, "1.2.3", s.Version())

	tools := s.Tools()
	require.Len(t, tools, 2)
	require.Equal(t, ToolExpandMacro, tools[0].Name)
	require.Equal(t, ToolListMacros, tools[1].Name)

	data, err := json.Marshal(tools[0].InputSchema)
	require.NoError(t, err)

	var schema jsonschema.Schema

	require.NoError(t, json.Unmarshal(data, &schema))
	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"lib", "name", "input"}, schema.Required)
	require.Contains(t, schema.Defs, "Subtree")
}

func TestCallTool_ListMacros(t *testing.T) {
	b := &fakeBackend{macros: []msg.Macro{
		{Name: "Foo", Kind: msg.KindCustomDerive},
		{Name: "bar_attr", Kind: msg.KindAttr},
	}}
	s := New(b, "dev", nil)

	res, err := s.CallTool(context.Background(), ToolListMacros, map[string]any{"lib": "libfoo.so"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "libfoo.so", b.gotLib)
	require.JSONEq(t, `[{"name":"Foo","kind":"CustomDerive"},{"name":"bar_attr","kind":"Attr"}]`, text(t, res, 0))

	res, err = s.CallTool(context.Background(), ToolListMacros, map[string]any{"lib": "libfoo.so", "kind": "CustomDerive"})
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"Foo","kind":"CustomDerive"}]`, text(t, res, 0))
}

func TestCallTool_ListMacrosFailure(t *testing.T) {
	s := New(&fakeBackend{err: errors.New("proc macro process is closed")}, "dev", nil)

	res, err := s.CallTool(context.Background(), ToolListMacros, map[string]any{"lib": "libfoo.so"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res, 0), "process is closed")

	res, err = s.CallTool(context.Background(), ToolListMacros, map[string]any{})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestCallTool_ExpandMacro(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, "dev", nil)

	input := tt.NewSubtree("", tt.Ident("struct"), tt.Ident("S"))
	attrs := tt.NewSubtree(tt.DelimiterParenthesis, tt.Lit("1"))

	res, err := s.CallTool(context.Background(), ToolExpandMacro, map[string]any{
		"lib":        "libfoo.so",
		"name":       "Foo",
		"input":      input,
		"attributes": attrs,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))
	require.Equal(t, "Foo", b.gotName)
	require.Equal(t, attrs, b.gotAttrs)

	var out tt.Subtree
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &out))
	require.Equal(t, "Foo struct S", out.String())
	require.Equal(t, "Foo struct S", text(t, res, 1))
}

func TestCallTool_ExpandMacroRejectsBadInput(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, "dev", nil)

	res, err := s.CallTool(context.Background(), ToolExpandMacro, map[string]any{
		"lib":   "libfoo.so",
		"name":  "Foo",
		"input": map[string]any{"token_trees": []any{map[string]any{"Leaf": map[string]any{}}}},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res, 0), "input:")
	require.Empty(t, b.gotName, "backend must not be called with an invalid tree")
}

func TestCallTool_UnknownAndFailingTools(t *testing.T) {
	s := NewServer("demo", "1.0.0", nil)
	s.AddTool(
		NewTool("fails", "always fails", msg.ObjectSchema(nil, nil)),
		func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	)

	res, err := s.CallTool(context.Background(), "fails", map[string]any{})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res, 0), "boom")

	res, err = s.CallTool(context.Background(), "unknown", map[string]any{})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestServeOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	s := New(&fakeBackend{macros: []msg.Macro{{Name: "Foo", Kind: msg.KindCustomDerive}}}, "dev", nil)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)

	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 2)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolListMacros,
		Arguments: map[string]any{"lib": "libfoo.so"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.JSONEq(t, `[{"name":"Foo","kind":"CustomDerive"}]`, text(t, res, 0))
}
