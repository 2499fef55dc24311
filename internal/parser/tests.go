package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// testNamePattern accepts generic test names, optionally package-qualified.
var testNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// testParams is the decoded argument block of one test entry.
type testParams struct {
	Values   []string `mapstructure:"values"`
	To       string   `mapstructure:"to"`
	Field    string   `mapstructure:"field"`
	Severity string   `mapstructure:"severity"`
	Config   struct {
		Severity string `mapstructure:"severity"`
	} `mapstructure:"config"`
	Remain map[string]any `mapstructure:",remain"`
}

func kindOf(name string) core.TestKind {
	switch name {
	case "not_null":
		return core.TestNotNull
	case "unique":
		return core.TestUnique
	case "accepted_values":
		return core.TestAcceptedValues
	case "relationships":
		return core.TestRelationships
	default:
		return core.TestCustom
	}
}

// parseTests reads a tests/data_tests list. Entries that cannot be typed are
// reported on the owning entity and skipped.
func (p *docParser) parseTests(n *yaml.Node, column string, w *entityWarnings) []core.Test {
	n = config.Deref(n)
	if config.IsNull(n) {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		w.add(n, "tests must be a list")
		return nil
	}
	var out []core.Test
	for _, item := range n.Content {
		if t, ok := p.parseTest(item, column, w); ok {
			out = append(out, t)
		}
	}
	return out
}

func (p *docParser) parseTest(item *yaml.Node, column string, w *entityWarnings) (core.Test, bool) {
	item = config.Deref(item)

	var (
		name string
		args *yaml.Node
	)
	switch item.Kind {
	case yaml.ScalarNode:
		name = item.Value
	case yaml.MappingNode:
		pairs := config.Pairs(item)
		if tn := config.Lookup(item, "test_name"); tn != nil {
			// custom-named generic test: the mapping itself holds the arguments
			name, args = config.String(tn), item
			break
		}
		if len(pairs) != 1 {
			w.add(item, "test entry must have exactly one test name")
			return core.Test{}, false
		}
		name, args = pairs[0].Key, pairs[0].Value
	default:
		w.add(item, "test entry must be a name or a mapping")
		return core.Test{}, false
	}

	if !testNamePattern.MatchString(name) {
		w.add(item, fmt.Sprintf("unknown test kind %q", name))
		return core.Test{}, false
	}

	params, err := decodeTestParams(args)
	if err != nil {
		w.add(item, fmt.Sprintf("test %s: %v", name, err))
		return core.Test{}, false
	}

	t := core.Test{Kind: kindOf(name), Name: name, Column: column, Severity: core.SeverityError}

	sev := params.Config.Severity
	if sev == "" {
		sev = params.Severity
	}
	if sev != "" {
		s, ok := core.ParseSeverity(sev)
		if !ok {
			w.add(item, fmt.Sprintf("test %s: unknown severity %q, using error", name, sev))
		}
		t.Severity = s
	}

	switch t.Kind {
	case core.TestAcceptedValues:
		t.AcceptedValues = dedupe(params.Values)
		if len(t.AcceptedValues) == 0 {
			w.add(item, "accepted_values test requires values")
			return core.Test{}, false
		}
	case core.TestRelationships:
		if params.To == "" || params.Field == "" {
			w.add(item, "relationships test requires to and field")
			return core.Test{}, false
		}
		ref, ok := ParseReference(params.To, core.KindModel)
		if !ok {
			w.add(item, fmt.Sprintf("relationships test: cannot read target %q", params.To))
			return core.Test{}, false
		}
		target := ref.modelName(p.project)
		if ref.Kind == core.KindSource {
			target = core.SourceRef{Source: ref.Name, Table: ref.Table}.String()
		}
		t.Relationship = &core.Relationship{Model: target, Field: params.Field}
	case core.TestCustom:
		t.Args = stringifyArgs(params.Remain)
		for k, v := range map[string]string{"to": params.To, "field": params.Field} {
			if v != "" {
				t.Args = setArg(t.Args, k, v)
			}
		}
		if len(params.Values) > 0 {
			t.Args = setArg(t.Args, "values", mustJSON(params.Values))
		}
	}
	return t, true
}

// decodeTestParams decodes the argument block of a test. Arguments nested
// under "arguments" (dbt 1.10+) are lifted to the top level.
func decodeTestParams(args *yaml.Node) (testParams, error) {
	var params testParams
	if config.IsNull(args) {
		return params, nil
	}
	var raw map[string]any
	if err := args.Decode(&raw); err != nil {
		return params, fmt.Errorf("arguments must be a mapping")
	}
	if nested, ok := raw["arguments"].(map[string]any); ok {
		delete(raw, "arguments")
		for k, v := range nested {
			raw[k] = v
		}
	}
	delete(raw, "name")
	delete(raw, "test_name")

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return params, err
	}
	if err := dec.Decode(raw); err != nil {
		return params, err
	}
	return params, nil
}

func stringifyArgs(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case nil:
			out[k] = ""
		case bool, int, int64, float64, uint64:
			out[k] = fmt.Sprint(tv)
		default:
			out[k] = mustJSON(tv)
		}
	}
	return out
}

func setArg(args map[string]string, k, v string) map[string]string {
	if args == nil {
		args = make(map[string]string)
	}
	args[k] = v
	return args
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// deriveConstraints folds tests and contract constraints into a sorted tag set.
func deriveConstraints(tests []core.Test, declared []string) []string {
	set := make(map[string]bool)
	for _, t := range tests {
		if c, ok := core.ConstraintForTest(t.Kind); ok {
			set[c] = true
		}
	}
	for _, c := range declared {
		set[c] = true
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
