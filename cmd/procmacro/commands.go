package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v2"

	procmacro "github.com/wagiedev/proc-macro-client-go"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "list the macros exported by a proc-macro library",
		ArgsUsage: "LIB",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "only list macros of this kind (CustomDerive, FuncLike, Attr)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of a table",
			},
		},
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("list: expected exactly one library path")
	}

	kind := c.String("kind")
	kinds := []string{string(procmacro.KindCustomDerive), string(procmacro.KindFuncLike), string(procmacro.KindAttr)}

	if kind != "" && !slices.Contains(kinds, kind) {
		return fmt.Errorf("list: unknown kind %q", kind)
	}

	log, err := newLogger(c)
	if err != nil {
		return err
	}

	client, err := openClient(c, log)
	if err != nil {
		return err
	}
	defer client.Close()

	macros, err := client.ListMacros(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	macros = slices.DeleteFunc(macros, func(m procmacro.Macro) bool {
		return kind != "" && string(m.Kind) != kind
	})

	if c.Bool("json") {
		return writeJSON(c.App.Writer, macros)
	}

	for _, m := range macros {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", m.Name, m.Kind)
	}

	return nil
}

func expandCommand() *cli.Command {
	return &cli.Command{
		Name:      "expand",
		Usage:     "run a macro on a token tree read as JSON",
		ArgsUsage: "LIB MACRO",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Value: "-",
				Usage: "file holding the input subtree, - for stdin",
			},
			&cli.StringFlag{
				Name:  "attrs",
				Usage: "file holding the attribute subtree of an attribute macro",
			},
			&cli.BoolFlag{
				Name:  "text",
				Usage: "print the expansion as source-like text instead of JSON",
			},
		},
		Action: expandAction,
	}
}

func expandAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expand: expected a library path and a macro name")
	}

	input, err := readSubtree(c, c.String("input"))
	if err != nil {
		return fmt.Errorf("expand: input: %w", err)
	}

	var attrs *procmacro.Subtree

	if path := c.String("attrs"); path != "" {
		if attrs, err = readSubtree(c, path); err != nil {
			return fmt.Errorf("expand: attrs: %w", err)
		}
	}

	log, err := newLogger(c)
	if err != nil {
		return err
	}

	client, err := openClient(c, log)
	if err != nil {
		return err
	}
	defer client.Close()

	out, err := client.Expand(c.Context, c.Args().Get(0), c.Args().Get(1), input, attrs)
	if err != nil {
		return err
	}

	if c.Bool("text") {
		_, err = fmt.Fprintln(c.App.Writer, out.String())

		return err
	}

	return writeJSON(c.App.Writer, out)
}

// readSubtree reads a subtree from path, or from the app's stdin for "-".
// The JSON is checked against the Subtree schema before decoding.
func readSubtree(c *cli.Context, path string) (*procmacro.Subtree, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(c.App.Reader)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, err
	}

	if err := msg.Validate("Subtree", data); err != nil {
		return nil, err
	}

	var s procmacro.Subtree
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "print the JSON Schema of a wire message (Request, Response or Subtree)",
		ArgsUsage: "NAME",
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				name = "Subtree"
			}

			s, err := msg.Schema(name)
			if err != nil {
				return err
			}

			return writeJSON(c.App.Writer, s)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
