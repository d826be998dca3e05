// Package mcpserver exposes a proc-macro client as Model Context Protocol
// tools.
//
// Two tools are registered:
//
//   - list_macros lists the macros exported by a library.
//   - expand_macro runs one macro on a token tree given as JSON.
//
// The server keeps its own thread-safe tool registry so tools can also be
// invoked directly with CallTool, without a transport.
package mcpserver
