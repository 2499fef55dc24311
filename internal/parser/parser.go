// Package parser reads dbt schema documents (models/**/*.yml) into typed entities.
//
// Each structural section (models, sources, exposures, metrics) is parsed on
// its own; unknown top-level sections are ignored. Entity-level defects are
// attached to the entity as warnings. Only unreadable YAML, or a merge key
// that expands into its own mapping, fails a document.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Options configures parsing of one document.
type Options struct {
	// Resolver supplies path-inherited configuration. When nil only
	// entity-local settings and the fixed defaults apply.
	Resolver *config.Resolver
}

// Document is the parse result of one schema document.
type Document struct {
	Path      string
	Version   int
	Models    []*core.Model
	Sources   []*core.Source
	Exposures []*core.Exposure
	Metrics   []*core.Metric
	// Warnings are document-level; entity warnings live on the entity
	Warnings []core.ParseWarning
}

// EntityCount returns the number of entities in the document.
func (d *Document) EntityCount() int {
	return len(d.Models) + len(d.Sources) + len(d.Exposures) + len(d.Metrics)
}

// Parse parses one schema document. It is pure: identical input yields
// structurally equal output.
func Parse(path string, content []byte, opts Options) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, config.NewParseError(path, err)
	}

	doc := &Document{Path: path}
	if len(root.Content) == 0 {
		return doc, nil
	}
	if err := config.CheckMerges(path, &root); err != nil {
		return nil, err
	}
	top := config.Deref(root.Content[0])
	if config.IsNull(top) {
		return doc, nil
	}
	if top.Kind != yaml.MappingNode {
		return nil, &core.ParseError{Path: path, Line: top.Line, Column: top.Column, Message: "schema document must be a mapping"}
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = config.NewResolver(nil, config.ResolverOptions{})
	}
	p := &docParser{
		path:     path,
		doc:      doc,
		resolver: resolver,
		project:  resolver.Project(),
	}

	for _, pair := range config.Pairs(top) {
		switch pair.Key {
		case "version":
			if v, err := strconv.Atoi(config.String(pair.Value)); err == nil {
				doc.Version = v
			}
		case "models":
			p.section(pair, func(n *yaml.Node, name string) {
				doc.Models = append(doc.Models, p.parseModel(n, name))
			})
		case "sources":
			p.section(pair, func(n *yaml.Node, name string) {
				doc.Sources = append(doc.Sources, p.parseSource(n, name))
			})
		case "exposures":
			p.section(pair, func(n *yaml.Node, name string) {
				doc.Exposures = append(doc.Exposures, p.parseExposure(n, name))
			})
		case "metrics":
			p.section(pair, func(n *yaml.Node, name string) {
				doc.Metrics = append(doc.Metrics, p.parseMetric(n, name))
			})
		}
	}
	return doc, nil
}

type docParser struct {
	path     string
	doc      *Document
	resolver *config.Resolver
	project  string
}

// section walks a list of named entities, reporting malformed items on the document.
func (p *docParser) section(pair config.Pair, each func(n *yaml.Node, name string)) {
	list := config.Deref(pair.Value)
	if config.IsNull(list) {
		return
	}
	if list.Kind != yaml.SequenceNode {
		p.docWarning(pair.KeyAt, fmt.Sprintf("%s must be a list, section skipped", pair.Key))
		return
	}
	for _, item := range list.Content {
		item = config.Deref(item)
		if item.Kind != yaml.MappingNode {
			p.docWarning(item, fmt.Sprintf("%s entry must be a mapping", pair.Key))
			continue
		}
		name := strings.TrimSpace(config.String(config.Lookup(item, "name")))
		if name == "" {
			p.docWarning(item, fmt.Sprintf("%s entry without a name skipped", pair.Key))
			continue
		}
		each(item, name)
	}
}

func (p *docParser) docWarning(n *yaml.Node, msg string) {
	w := core.ParseWarning{Path: p.path, Message: msg}
	if n != nil {
		w.Line, w.Column = n.Line, n.Column
	}
	p.doc.Warnings = append(p.doc.Warnings, w)
}

// entityWarnings collects warnings for one entity.
type entityWarnings struct {
	path   string
	entity string
	list   []core.ParseWarning
}

func (w *entityWarnings) add(n *yaml.Node, msg string) {
	pw := core.ParseWarning{Path: w.path, Entity: w.entity, Message: msg}
	if n != nil {
		pw.Line, pw.Column = n.Line, n.Column
	}
	w.list = append(w.list, pw)
}

func (w *entityWarnings) addErrors(n *yaml.Node, errs []error) {
	for _, err := range errs {
		var fe *config.FieldError
		if errors.As(err, &fe) && fe.Line > 0 {
			w.list = append(w.list, core.ParseWarning{
				Path: w.path, Entity: w.entity, Line: fe.Line, Column: fe.Column, Message: "config " + fe.Error(),
			})
			continue
		}
		w.add(n, "config "+err.Error())
	}
}

// =============================================================================
// Models
// =============================================================================

// legacyModelFields may appear directly on a model instead of under config.
var legacyModelFields = []string{
	config.FieldMaterialized, config.FieldSchema, config.FieldDatabase, config.FieldAlias,
	config.FieldTags, config.FieldMeta, config.FieldEnabled, config.FieldAccess, config.FieldGroup,
}

func (p *docParser) parseModel(n *yaml.Node, name string) *core.Model {
	w := &entityWarnings{path: p.path, entity: name}
	m := &core.Model{
		Name:         name,
		Description:  config.String(config.Lookup(n, "description")),
		DocumentPath: p.path,
	}

	// entity-local overrides: legacy top-level keys, then the config block
	var local core.ConfigOverrides
	for _, field := range legacyModelFields {
		if v := config.Lookup(n, field); v != nil {
			if err := config.SetField(&local, field, v); err != nil {
				w.addErrors(v, []error{err})
			}
		}
	}
	cfgNode := config.Lookup(n, "config")
	cfg, errs := config.DecodeOverrides(cfgNode)
	w.addErrors(cfgNode, errs)
	topTags := local.Tags
	local = local.Merge(cfg)
	if topTags != nil && cfg.Tags != nil {
		// tags declared in both places are additive, as in dbt
		local.Tags = config.NormalizeSet(append(append([]string{}, topTags...), cfg.Tags...))
	}
	m.Config = local

	m.Path = config.ModelPath(p.project, p.resolver.ModelPaths(), p.path, name)
	eff := p.resolver.Effective(m.Path)

	m.Materialization = eff.Materialization
	if local.Materialized != nil {
		m.Materialization = core.ParseMaterialization(p.resolver.Render(string(*local.Materialized)))
	}
	m.Schema = eff.Schema
	if local.Schema != nil {
		m.Schema = p.resolver.SchemaName(p.resolver.Render(*local.Schema))
	}
	m.Database = eff.Database
	if local.Database != nil {
		m.Database = p.resolver.Render(*local.Database)
	}
	if local.Alias != nil {
		m.Alias = *local.Alias
	}
	m.Tags = eff.Tags
	if local.Tags != nil {
		m.Tags = local.Tags
	}
	m.Meta = eff.Meta
	if local.Meta != nil {
		m.Meta = local.Meta
	}
	m.Enabled = eff.Enabled
	if local.Enabled != nil {
		m.Enabled = *local.Enabled
	}
	if local.UniqueKey != nil {
		m.UniqueKey = *local.UniqueKey
	}
	if local.Access != nil {
		m.Access = *local.Access
	}
	if local.Group != nil {
		m.Group = *local.Group
	}
	m.Tags = config.NormalizeSet(m.Tags)
	if len(m.Meta) == 0 {
		m.Meta = nil
	}

	m.Columns = p.parseColumns(config.Lookup(n, "columns"), w)
	m.Tests = append(p.parseTests(config.Lookup(n, "tests"), "", w), p.parseTests(config.Lookup(n, "data_tests"), "", w)...)

	// explicit reference lists, at the top level or under config
	for _, holder := range []*yaml.Node{n, cfgNode} {
		p.explicitRefs(m, holder, w)
	}
	for _, key := range []string{"raw_code", "raw_sql", "sql"} {
		if body := config.Lookup(n, key); IsText(body) {
			AttachBody(m, config.String(body), p.project)
		}
	}

	m.Warnings = w.list
	return m
}

// IsText reports whether n is a non-empty scalar.
func IsText(n *yaml.Node) bool {
	return config.IsScalar(n) && !config.IsNull(n) && strings.TrimSpace(config.Deref(n).Value) != ""
}

func (p *docParser) explicitRefs(m *core.Model, holder *yaml.Node, w *entityWarnings) {
	if holder == nil {
		return
	}
	lists := []struct {
		key  string
		kind core.EntityKind
	}{
		{"depends_on", core.KindModel},
		{"refs", core.KindModel},
		{"sources", core.KindSource},
	}
	for _, l := range lists {
		v := config.Lookup(holder, l.key)
		if v == nil {
			continue
		}
		if l.key == "depends_on" && config.Deref(v).Kind == yaml.MappingNode {
			// manifest style: depends_on: {nodes: [...]}
			v = config.Lookup(v, "nodes")
		}
		entries, ok := config.Strings(v)
		if !ok {
			w.add(v, l.key+" must be a list of references")
			continue
		}
		for _, e := range entries {
			ref, ok := ParseReference(e, l.kind)
			if !ok {
				w.add(v, fmt.Sprintf("cannot read reference %q in %s", e, l.key))
				continue
			}
			addReference(m, ref, p.project)
		}
	}
}

// =============================================================================
// Columns
// =============================================================================

var contractConstraints = map[string]string{
	"not_null":    core.ConstraintRequired,
	"unique":      core.ConstraintUnique,
	"primary_key": core.ConstraintPrimaryKey,
	"foreign_key": core.ConstraintForeignKey,
	"check":       core.ConstraintCheck,
}

func (p *docParser) parseColumns(n *yaml.Node, w *entityWarnings) []core.Column {
	n = config.Deref(n)
	if config.IsNull(n) {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		w.add(n, "columns must be a list")
		return nil
	}
	var cols []core.Column
	seen := make(map[string]bool)
	for _, item := range n.Content {
		item = config.Deref(item)
		if item.Kind != yaml.MappingNode {
			w.add(item, "column entry must be a mapping")
			continue
		}
		name := strings.TrimSpace(config.String(config.Lookup(item, "name")))
		if name == "" {
			w.add(item, "column without a name skipped")
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			w.add(item, fmt.Sprintf("duplicate column %q skipped", name))
			continue
		}
		seen[key] = true
		cols = append(cols, p.parseColumn(item, name, w))
	}
	return cols
}

func (p *docParser) parseColumn(n *yaml.Node, name string, w *entityWarnings) core.Column {
	col := core.Column{
		Name:        name,
		Description: config.String(config.Lookup(n, "description")),
		DataType:    config.String(config.Lookup(n, "data_type")),
	}

	p.entityLabels(n, &col.Tags, &col.Meta, w)

	col.Tests = append(p.parseTests(config.Lookup(n, "tests"), name, w), p.parseTests(config.Lookup(n, "data_tests"), name, w)...)

	var declared []string
	if cs := config.Deref(config.Lookup(n, "constraints")); !config.IsNull(cs) {
		if cs.Kind != yaml.SequenceNode {
			w.add(cs, fmt.Sprintf("column %s: constraints must be a list", name))
		} else {
			for _, c := range cs.Content {
				typ := config.String(config.Lookup(c, "type"))
				if config.IsScalar(c) {
					typ = config.Deref(c).Value
				}
				tag, ok := contractConstraints[strings.ToLower(typ)]
				if !ok {
					w.add(c, fmt.Sprintf("column %s: unknown constraint type %q", name, typ))
					continue
				}
				declared = append(declared, tag)
			}
		}
	}
	col.Constraints = deriveConstraints(col.Tests, declared)
	return col
}

// =============================================================================
// Sources, exposures, metrics
// =============================================================================

func (p *docParser) parseSource(n *yaml.Node, name string) *core.Source {
	w := &entityWarnings{path: p.path, entity: name}
	s := &core.Source{
		Name:         name,
		Description:  config.String(config.Lookup(n, "description")),
		Schema:       name,
		Database:     p.resolver.Render(config.String(config.Lookup(n, "database"))),
		Loader:       config.String(config.Lookup(n, "loader")),
		DocumentPath: p.path,
	}
	if schema := config.String(config.Lookup(n, "schema")); schema != "" {
		s.Schema = p.resolver.Render(schema)
	}
	if f := config.Lookup(n, "freshness"); !config.IsNull(f) {
		s.Freshness = config.String(f)
	}

	p.entityLabels(n, &s.Tags, &s.Meta, w)

	tables := config.Deref(config.Lookup(n, "tables"))
	switch {
	case config.IsNull(tables):
	case tables.Kind != yaml.SequenceNode:
		w.add(tables, "tables must be a list")
	default:
		for _, item := range tables.Content {
			tname := strings.TrimSpace(config.String(config.Lookup(item, "name")))
			if config.Deref(item).Kind != yaml.MappingNode || tname == "" {
				w.add(item, "table entry without a name skipped")
				continue
			}
			if _, dup := s.Table(tname); dup {
				w.add(item, fmt.Sprintf("duplicate table %q skipped", tname))
				continue
			}
			s.Tables = append(s.Tables, core.SourceTable{
				Name:        tname,
				Identifier:  config.String(config.Lookup(item, "identifier")),
				Description: config.String(config.Lookup(item, "description")),
				Columns:     p.parseColumns(config.Lookup(item, "columns"), w),
				Tests:       append(p.parseTests(config.Lookup(item, "tests"), "", w), p.parseTests(config.Lookup(item, "data_tests"), "", w)...),
			})
		}
	}

	s.Warnings = w.list
	return s
}

func (p *docParser) parseExposure(n *yaml.Node, name string) *core.Exposure {
	w := &entityWarnings{path: p.path, entity: name}
	e := &core.Exposure{
		Name:         name,
		Type:         config.String(config.Lookup(n, "type")),
		Description:  config.String(config.Lookup(n, "description")),
		Maturity:     config.String(config.Lookup(n, "maturity")),
		URL:          config.String(config.Lookup(n, "url")),
		DocumentPath: p.path,
	}
	if owner := config.Lookup(n, "owner"); owner != nil {
		e.Owner = core.Owner{
			Name:  config.String(config.Lookup(owner, "name")),
			Email: config.String(config.Lookup(owner, "email")),
		}
	}
	p.entityLabels(n, &e.Tags, &e.Meta, w)

	if deps := config.Lookup(n, "depends_on"); deps != nil {
		entries, ok := config.Strings(deps)
		if !ok {
			w.add(deps, "depends_on must be a list of references")
		}
		for _, entry := range entries {
			ref, ok := ParseReference(entry, core.KindModel)
			if !ok {
				w.add(deps, fmt.Sprintf("cannot read reference %q in depends_on", entry))
				continue
			}
			if ref.Kind == core.KindSource {
				e.SourceRefs = append(e.SourceRefs, core.SourceRef{Source: ref.Name, Table: ref.Table})
			} else {
				e.Refs = append(e.Refs, ref.modelName(p.project))
			}
		}
	}

	e.Warnings = w.list
	return e
}

func (p *docParser) parseMetric(n *yaml.Node, name string) *core.Metric {
	w := &entityWarnings{path: p.path, entity: name}
	m := &core.Metric{
		Name:              name,
		Label:             config.String(config.Lookup(n, "label")),
		Description:       config.String(config.Lookup(n, "description")),
		Type:              config.String(config.Lookup(n, "type")),
		CalculationMethod: config.String(config.Lookup(n, "calculation_method")),
		Expression:        config.String(config.Lookup(n, "expression")),
		Timestamp:         config.String(config.Lookup(n, "timestamp")),
		DocumentPath:      p.path,
	}
	if m.Expression == "" {
		m.Expression = config.String(config.Lookup(n, "sql"))
	}
	lists := []struct {
		key string
		dst *[]string
	}{
		{"time_grains", &m.TimeGrains},
		{"dimensions", &m.Dimensions},
	}
	for _, l := range lists {
		if v := config.Lookup(n, l.key); v != nil {
			list, ok := config.Strings(v)
			if !ok {
				w.add(v, l.key+" must be a list")
				continue
			}
			*l.dst = list
		}
	}
	if model := config.Lookup(n, "model"); IsText(model) {
		ref, ok := ParseReference(config.String(model), core.KindModel)
		if ok && ref.Kind == core.KindModel {
			m.Model = ref.modelName(p.project)
		} else {
			w.add(model, fmt.Sprintf("cannot read model reference %q", config.String(model)))
		}
	}
	p.entityLabels(n, &m.Tags, &m.Meta, w)

	m.Warnings = w.list
	return m
}

// entityLabels reads tags and meta from the entity or its config block.
func (p *docParser) entityLabels(n *yaml.Node, tags *[]string, meta *map[string]string, w *entityWarnings) {
	var local core.ConfigOverrides
	for _, field := range []string{config.FieldTags, config.FieldMeta} {
		if v := config.Lookup(n, field); v != nil {
			if err := config.SetField(&local, field, v); err != nil {
				w.addErrors(v, []error{err})
			}
		}
	}
	cfg, errs := config.DecodeOverrides(config.Lookup(n, "config"))
	w.addErrors(config.Lookup(n, "config"), errs)
	local = local.Merge(cfg)
	*tags = config.NormalizeSet(local.Tags)
	if len(local.Meta) > 0 {
		*meta = local.Meta
	}
}
