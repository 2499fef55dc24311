package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// SchemaStrategy controls how a custom schema combines with the default schema.
type SchemaStrategy string

const (
	// SchemaCustom uses a configured custom schema verbatim.
	SchemaCustom SchemaStrategy = "custom"
	// SchemaDBT mirrors dbt's default generate_schema_name: <default>_<custom>.
	SchemaDBT SchemaStrategy = "dbt"
)

// ParseSchemaStrategy validates a strategy name. Empty means SchemaCustom.
func ParseSchemaStrategy(s string) (SchemaStrategy, bool) {
	switch SchemaStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaCustom:
		return SchemaCustom, true
	case SchemaDBT:
		return SchemaDBT, true
	default:
		return "", false
	}
}

// ResolverOptions carries the externally supplied resolution inputs.
type ResolverOptions struct {
	// SchemaOverride replaces the computed schema of every path when set
	SchemaOverride string
	// Target is the target/environment name; it is substituted into
	// "{{ target.name }}" expressions in config values
	Target string
	// DefaultSchema and DefaultDatabase come from the selected target
	DefaultSchema   string
	DefaultDatabase string
	SchemaStrategy  SchemaStrategy
}

// Effective is the flat configuration of one model path.
type Effective struct {
	Materialization core.Materialization `json:"materialization"`
	Schema          string               `json:"schema"`
	Database        string               `json:"database,omitempty"`
	Tags            []string             `json:"tags"`
	Meta            map[string]string    `json:"meta"`
	Enabled         bool                 `json:"enabled"`
}

// Resolver answers effective-configuration queries for one manifest.
// It is immutable and safe for concurrent use.
type Resolver struct {
	project    string
	modelPaths []string
	nodes      map[string]*Node
	opts       ResolverOptions
	vars       map[string]string
}

// NewResolver creates a resolver over the manifest's models tree.
// A nil manifest resolves every path to the defaults.
func NewResolver(m *Manifest, opts ResolverOptions) *Resolver {
	if opts.SchemaStrategy == "" {
		opts.SchemaStrategy = SchemaCustom
	}
	r := &Resolver{
		modelPaths: append([]string(nil), DefaultModelPaths...),
		nodes:      map[string]*Node{},
		opts:       opts,
	}
	if m != nil {
		r.project = m.Name
		r.modelPaths = slices.Clone(m.ModelPaths)
		r.nodes = maps.Clone(m.Nodes)
		r.vars = maps.Clone(m.Vars)
	}
	return r
}

// Project returns the project name.
func (r *Resolver) Project() string { return r.project }

// ModelPaths returns the directories holding models.
func (r *Resolver) ModelPaths() []string { return slices.Clone(r.modelPaths) }

// Vars returns the flattened project vars.
func (r *Resolver) Vars() map[string]string { return maps.Clone(r.vars) }

// Options returns the options the resolver was built with.
func (r *Resolver) Options() ResolverOptions { return r.opts }

// Effective resolves the configuration of a dotted path: every field takes
// the value of the deepest node that sets it, falling back to the defaults.
func (r *Resolver) Effective(path string) Effective {
	var (
		mat      *core.Materialization
		schema   *string
		database *string
		tags     []string
		meta     map[string]string
		enabled  *bool
	)

	for _, prefix := range prefixes(path) {
		node, ok := r.nodes[prefix]
		if !ok {
			continue
		}
		c := node.Config
		if mat == nil && c.Materialized != nil {
			mat = c.Materialized
		}
		if schema == nil && c.Schema != nil {
			schema = c.Schema
		}
		if database == nil && c.Database != nil {
			database = c.Database
		}
		if tags == nil && c.Tags != nil {
			tags = c.Tags
		}
		if meta == nil && c.Meta != nil {
			meta = c.Meta
		}
		if enabled == nil && c.Enabled != nil {
			enabled = c.Enabled
		}
	}

	eff := Effective{
		Materialization: core.DefaultMaterialization,
		Database:        r.opts.DefaultDatabase,
		Tags:            slices.Clone(tags),
		Meta:            maps.Clone(meta),
		Enabled:         true,
	}
	if eff.Tags == nil {
		eff.Tags = []string{}
	}
	if eff.Meta == nil {
		eff.Meta = map[string]string{}
	}
	if mat != nil {
		eff.Materialization = core.ParseMaterialization(r.render(string(*mat)))
	}
	if database != nil {
		eff.Database = r.render(*database)
	}
	if enabled != nil {
		eff.Enabled = *enabled
	}
	custom := ""
	if schema != nil {
		custom = r.render(*schema)
	}
	eff.Schema = r.SchemaName(custom)
	return eff
}

// SchemaName combines a custom schema with the default schema according to
// the strategy. The override, when set, wins over both.
func (r *Resolver) SchemaName(custom string) string {
	if r.opts.SchemaOverride != "" {
		return r.opts.SchemaOverride
	}
	custom = strings.TrimSpace(custom)
	switch {
	case custom == "":
		return r.opts.DefaultSchema
	case r.opts.SchemaStrategy == SchemaDBT && r.opts.DefaultSchema != "":
		return r.opts.DefaultSchema + "_" + custom
	default:
		return custom
	}
}

// Render substitutes target expressions in a config value declared on an entity.
func (r *Resolver) Render(s string) string { return r.render(s) }

var (
	targetNameExpr = regexp.MustCompile(`\{\{\s*target\.name\s*\}\}`)
	targetCondExpr = regexp.MustCompile(`^\{\{\s*['"]([^'"]*)['"]\s+if\s+target\.name\s*(==|!=)\s*['"]([^'"]*)['"]\s+else\s+['"]([^'"]*)['"]\s*\}\}$`)
)

// render handles the two target expressions commonly used in project files:
// {{ target.name }} and {{ 'a' if target.name == 'x' else 'b' }}.
// Any other template text is returned unchanged.
func (r *Resolver) render(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	if m := targetCondExpr.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		match := r.opts.Target == m[3]
		if m[2] == "!=" {
			match = !match
		}
		if match {
			return m[1]
		}
		return m[4]
	}
	if r.opts.Target == "" {
		return s
	}
	return targetNameExpr.ReplaceAllString(s, r.opts.Target)
}

// Fingerprint is a stable digest of the tree and options. Parsed documents
// are only reusable under an identical fingerprint.
func (r *Resolver) Fingerprint() string {
	keys := make([]string, 0, len(r.nodes))
	for k := range r.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nodes := make([]*Node, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, r.nodes[k])
	}
	payload := struct {
		Project    string
		ModelPaths []string
		Nodes      []*Node
		Vars       map[string]string
		Opts       ResolverOptions
	}{r.project, r.modelPaths, nodes, r.vars, r.opts}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// prefixes returns path and its ancestors, deepest first, ending with the root "".
func prefixes(path string) []string {
	path = strings.Trim(path, ".")
	if path == "" {
		return []string{""}
	}
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts)+1)
	for i := len(parts); i > 0; i-- {
		out = append(out, strings.Join(parts[:i], "."))
	}
	return append(out, "")
}
