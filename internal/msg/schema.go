package msg

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

const schemaDialect = "https://json-schema.org/draft/2020-12/schema"

func ref(name string) *jsonschema.Schema {
	return &jsonschema.Schema{Ref: "#/$defs/" + name}
}

func intPtr(v int) *int { return &v }

func float64Ptr(v float64) *float64 { return &v }

// noExtra forbids properties beyond the declared ones.
func noExtra() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

// union builds the schema of an externally tagged enum: an object with
// exactly one of the given variant keys.
func union(variants map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           variants,
		MinProperties:        intPtr(1),
		MaxProperties:        intPtr(1),
		AdditionalProperties: noExtra(),
	}
}

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func enum(values ...string) *jsonschema.Schema {
	e := make([]any, 0, len(values))
	for _, v := range values {
		e = append(e, v)
	}

	return &jsonschema.Schema{Type: "string", Enum: e}
}

// definitions returns the shared $defs of all message schemas.
func definitions() map[string]*jsonschema.Schema {
	str := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }

	return map[string]*jsonschema.Schema{
		"TokenId": {Type: "integer", Minimum: float64Ptr(0)},
		"Delimiter": object([]string{"id", "kind"}, map[string]*jsonschema.Schema{
			"id":   ref("TokenId"),
			"kind": enum("Parenthesis", "Brace", "Bracket"),
		}),
		"Subtree": object([]string{"token_trees"}, map[string]*jsonschema.Schema{
			"delimiter": {AnyOf: []*jsonschema.Schema{{Type: "null"}, ref("Delimiter")}},
			"token_trees": {
				Type:  "array",
				Items: ref("TokenTree"),
			},
		}),
		"TokenTree": union(map[string]*jsonschema.Schema{
			"Leaf":    ref("Leaf"),
			"Subtree": ref("Subtree"),
		}),
		"Leaf": union(map[string]*jsonschema.Schema{
			"Literal": object([]string{"text", "id"}, map[string]*jsonschema.Schema{
				"text": str(),
				"id":   ref("TokenId"),
			}),
			"Punct": object([]string{"char", "spacing", "id"}, map[string]*jsonschema.Schema{
				"char":    {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(1)},
				"spacing": enum("Alone", "Joint"),
				"id":      ref("TokenId"),
			}),
			"Ident": object([]string{"text", "id"}, map[string]*jsonschema.Schema{
				"text": str(),
				"id":   ref("TokenId"),
			}),
		}),
		"Macro": {
			Type:        "array",
			PrefixItems: []*jsonschema.Schema{str(), enum(string(KindCustomDerive), string(KindFuncLike), string(KindAttr))},
			MinItems:    intPtr(2),
			MaxItems:    intPtr(2),
		},
		"Request": union(map[string]*jsonschema.Schema{
			VariantListMacro: object([]string{"lib"}, map[string]*jsonschema.Schema{
				"lib": str(),
			}),
			VariantExpansionMacro: object([]string{"macro_body", "macro_name", "lib"}, map[string]*jsonschema.Schema{
				"macro_body": ref("Subtree"),
				"macro_name": str(),
				"attributes": {AnyOf: []*jsonschema.Schema{{Type: "null"}, ref("Subtree")}},
				"lib":        str(),
			}),
		}),
		"Response": union(map[string]*jsonschema.Schema{
			VariantError: object([]string{"code", "message"}, map[string]*jsonschema.Schema{
				"code":    enum(string(ErrorCodeServerErrorEnd), string(ErrorCodeExpansionError)),
				"message": str(),
			}),
			VariantListMacro: object([]string{"macros"}, map[string]*jsonschema.Schema{
				"macros": {Type: "array", Items: ref("Macro")},
			}),
			VariantExpansionMacro: object([]string{"expansion"}, map[string]*jsonschema.Schema{
				"expansion": ref("Subtree"),
			}),
		}),
	}
}

// Schema returns the JSON Schema of the named message definition, one of
// "Request", "Response" or "Subtree". The returned schema is self-contained:
// it carries every definition it references.
func Schema(name string) (*jsonschema.Schema, error) {
	defs := definitions()
	if _, ok := defs[name]; !ok {
		return nil, fmt.Errorf("unknown message schema %q", name)
	}

	return &jsonschema.Schema{
		Schema: schemaDialect,
		Title:  name,
		Ref:    "#/$defs/" + name,
		Defs:   defs,
	}, nil
}

// ObjectSchema returns an object schema whose properties may reference the
// message definitions (e.g. "#/$defs/Subtree"). Used for tool input schemas.
func ObjectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	s := object(required, maps.Clone(props))
	s.Defs = definitions()

	return s
}

// SubtreeRef references the Subtree definition inside an ObjectSchema.
func SubtreeRef() *jsonschema.Schema {
	return ref("Subtree")
}

var resolved sync.Map // name -> *jsonschema.Resolved

func resolve(name string) (*jsonschema.Resolved, error) {
	if rs, ok := resolved.Load(name); ok {
		return rs.(*jsonschema.Resolved), nil
	}

	s, err := Schema(name)
	if err != nil {
		return nil, err
	}

	rs, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", name, err)
	}

	resolved.Store(name, rs)

	return rs, nil
}

// Validate checks raw JSON against the named message schema.
func Validate(name string, raw []byte) error {
	rs, err := resolve(name)
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	if err := rs.Validate(instance); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}

	return nil
}
