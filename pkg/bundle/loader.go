package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-leafrender/pkg/model"
)

// Component is a named schema ready for registration.
type Component struct {
	Name   string
	Schema []byte
	Source string
}

// Bundle is the merged content of one or more manifests. Templates keep
// manifest order so dependencies can be declared before their dependants.
type Bundle struct {
	Components []Component
	Templates  []model.TemplateDefinition
	Contexts   map[string]map[string]any
	Files      []string
}

// Target receives a bundle.
type Target interface {
	RegisterComponent(ctx context.Context, name string, schema []byte) error
	CompileDefinitions(defs ...model.TemplateDefinition) model.CompileResult
}

type manifestFile struct {
	Components map[string]componentFile  `json:"components" yaml:"components"`
	Templates  []templateFile            `json:"templates" yaml:"templates"`
	Contexts   map[string]map[string]any `json:"contexts" yaml:"contexts"`
}

type componentFile struct {
	Schema     any    `json:"schema" yaml:"schema"`
	SchemaFile string `json:"schemaFile" yaml:"schemaFile"`
}

type templateFile struct {
	Name       string   `json:"name" yaml:"name"`
	Source     *string  `json:"source" yaml:"source"`
	File       string   `json:"file" yaml:"file"`
	Components []string `json:"components" yaml:"components"`
}

// IsManifest reports whether name follows the manifest naming convention.
func IsManifest(name string) bool {
	lower := strings.ToLower(path.Base(name))
	for _, suffix := range []string{".leaf.json", ".leaf.yaml", ".leaf.yml"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Load parses the single manifest at file.
func Load(fsys fs.FS, file string) (*Bundle, error) {
	b := newBundle()
	if err := b.merge(fsys, file); err != nil {
		return nil, err
	}
	b.finish()
	return b, nil
}

// LoadFS walks fsys and merges every manifest it finds in lexical path order.
// Component, template and context names must be unique across files. When
// fsys is nil or holds no manifests the returned bundle is empty.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	b := newBundle()
	if fsys == nil {
		return b, nil
	}

	err := fs.WalkDir(fsys, ".", func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !IsManifest(p) {
			return nil
		}
		return b.merge(fsys, p)
	})
	if err != nil {
		return nil, err
	}
	b.finish()
	return b, nil
}

func newBundle() *Bundle {
	return &Bundle{Contexts: make(map[string]map[string]any)}
}

func (b *Bundle) merge(fsys fs.FS, file string) error {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("bundle: read %s: %w", file, err)
	}
	doc, err := parseManifest(data, file)
	if err != nil {
		return err
	}
	dir := path.Dir(file)

	names := make([]string, 0, len(doc.Components))
	for name := range doc.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, rawName := range names {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return fmt.Errorf("bundle: file %s defines an empty component name", file)
		}
		if b.hasComponent(name) {
			return fmt.Errorf("bundle: duplicate component %q (file %s)", name, file)
		}
		schema, err := resolveSchema(fsys, dir, file, name, doc.Components[rawName])
		if err != nil {
			return err
		}
		b.Components = append(b.Components, Component{Name: name, Schema: schema, Source: file})
	}

	for i, tpl := range doc.Templates {
		def, err := resolveTemplate(fsys, dir, file, i, tpl)
		if err != nil {
			return err
		}
		if b.hasTemplate(def.Name) {
			return fmt.Errorf("bundle: duplicate template %q (file %s)", def.Name, file)
		}
		b.Templates = append(b.Templates, def)
	}

	for name, sample := range doc.Contexts {
		name = strings.TrimSpace(name)
		if _, exists := b.Contexts[name]; exists {
			return fmt.Errorf("bundle: duplicate context %q (file %s)", name, file)
		}
		if sample == nil {
			sample = map[string]any{}
		}
		b.Contexts[name] = sample
	}

	b.Files = append(b.Files, file)
	return nil
}

func (b *Bundle) finish() {
	sort.SliceStable(b.Components, func(i, j int) bool {
		return b.Components[i].Name < b.Components[j].Name
	})
}

func (b *Bundle) hasComponent(name string) bool {
	for _, c := range b.Components {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (b *Bundle) hasTemplate(name string) bool {
	for _, t := range b.Templates {
		if t.Name == name {
			return true
		}
	}
	return false
}

func parseManifest(data []byte, source string) (manifestFile, error) {
	var doc manifestFile
	if len(strings.TrimSpace(string(data))) == 0 {
		return manifestFile{}, fmt.Errorf("bundle: file %s is empty", source)
	}

	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	doc = manifestFile{}
	if err := yaml.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	return manifestFile{}, fmt.Errorf("bundle: parse %s: invalid JSON or YAML", source)
}

func resolveSchema(fsys fs.FS, dir, file, name string, raw componentFile) ([]byte, error) {
	switch {
	case raw.Schema != nil && raw.SchemaFile != "":
		return nil, fmt.Errorf("bundle: component %q (file %s) sets both schema and schemaFile", name, file)
	case raw.SchemaFile != "":
		data, err := fs.ReadFile(fsys, path.Join(dir, raw.SchemaFile))
		if err != nil {
			return nil, fmt.Errorf("bundle: component %q (file %s): %w", name, file, err)
		}
		return data, nil
	case raw.Schema != nil:
		data, err := json.Marshal(raw.Schema)
		if err != nil {
			return nil, fmt.Errorf("bundle: component %q (file %s): encode schema: %w", name, file, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("bundle: component %q (file %s) has no schema", name, file)
	}
}

func resolveTemplate(fsys fs.FS, dir, file string, index int, raw templateFile) (model.TemplateDefinition, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return model.TemplateDefinition{}, fmt.Errorf("bundle: template #%d (file %s) has no name", index, file)
	}

	var source string
	switch {
	case raw.Source != nil && raw.File != "":
		return model.TemplateDefinition{}, fmt.Errorf("bundle: template %q (file %s) sets both source and file", name, file)
	case raw.File != "":
		data, err := fs.ReadFile(fsys, path.Join(dir, raw.File))
		if err != nil {
			return model.TemplateDefinition{}, fmt.Errorf("bundle: template %q (file %s): %w", name, file, err)
		}
		source = string(data)
	case raw.Source != nil:
		source = *raw.Source
	default:
		return model.TemplateDefinition{}, fmt.Errorf("bundle: template %q (file %s) has no source", name, file)
	}

	return model.TemplateDefinition{
		Name:       name,
		Source:     source,
		Components: raw.Components,
	}.Normalize(), nil
}

// Apply registers every component and then compiles the templates in order.
// It stops at the first failure; compile failures are returned as
// *model.Error.
func (b *Bundle) Apply(ctx context.Context, target Target) error {
	if b == nil {
		return nil
	}
	for _, component := range b.Components {
		if err := target.RegisterComponent(ctx, component.Name, component.Schema); err != nil {
			return fmt.Errorf("bundle: component %q (file %s): %w", component.Name, component.Source, err)
		}
	}
	if len(b.Templates) == 0 {
		return nil
	}
	if result := target.CompileDefinitions(b.Templates...); !result.OK() {
		return result.Error
	}
	return nil
}

// Context returns the sample context declared for template, or an empty one.
func (b *Bundle) Context(template string) map[string]any {
	if b == nil {
		return map[string]any{}
	}
	if sample, ok := b.Contexts[template]; ok {
		return sample
	}
	return map[string]any{}
}
