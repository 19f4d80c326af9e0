package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
)

// ManifestParser reads datasource manifests written in YAML or CUE.
type ManifestParser struct {
	ctx       *cue.Context
	schema    *schema
	validator *validator.Validate
}

// NewManifestParser creates a new manifest parser.
func NewManifestParser() *ManifestParser {
	return &ManifestParser{
		ctx:       cuecontext.New(),
		schema:    &schema{},
		validator: validator.New(),
	}
}

// LoadManifest parses the manifest at path with a fresh parser.
func LoadManifest(path string) (*Manifest, error) {
	return NewManifestParser().Parse(path)
}

// Parse reads a manifest from a .yaml/.yml file, a .cue file or a directory
// holding a CUE package. Content problems are returned as *ManifestError.
func (p *ManifestParser) Parse(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}

	var manifest *Manifest
	switch {
	case info.IsDir():
		manifest, err = p.parseCUEDirectory(path)
	case isCUEFile(path):
		manifest, err = p.parseCUEFile(path)
	case isYAMLFile(path):
		manifest, err = p.parseYAMLFile(path)
	default:
		return nil, fmt.Errorf("unsupported manifest type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if verrs := p.check(manifest); len(verrs) > 0 {
		for i := range verrs {
			if verrs[i].File == "" && len(manifest.SourceFiles) == 1 {
				verrs[i].File = manifest.SourceFiles[0]
			}
		}
		return nil, &ManifestError{Errors: verrs}
	}

	manifest.ParsedAt = time.Now()
	return manifest, nil
}

// Specs converts every entry to a datasource spec, in declaration order.
func (m *Manifest) Specs() ([]*datasource.Spec, error) {
	specs := make([]*datasource.Spec, 0, len(m.Datasources))
	for i := range m.Datasources {
		spec, err := m.Datasources[i].ToSpec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func isCUEFile(path string) bool {
	return strings.HasSuffix(path, ".cue")
}

func isYAMLFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

func isManifestFile(path string) bool {
	return isCUEFile(path) || isYAMLFile(path)
}

// parseYAMLFile decodes a YAML manifest. Unknown keys are rejected.
func (p *ManifestParser) parseYAMLFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, &ManifestError{Errors: []ValidationError{{
			File:    path,
			Message: err.Error(),
		}}}
	}

	manifest.SourceFiles = []string{path}
	return &manifest, nil
}

// parseCUEFile compiles a single CUE file.
func (p *ManifestParser) parseCUEFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	val := p.ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, &ManifestError{Errors: convertCUEErrors(err)}
	}

	return p.extractManifest(val, []string{path})
}

// parseCUEDirectory loads a directory as a CUE package.
func (p *ManifestParser) parseCUEDirectory(dir string) (*Manifest, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ManifestError{Errors: []ValidationError{{
			File:    dir,
			Message: "no CUE files found",
		}}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, &ManifestError{Errors: convertCUEErrors(inst.Err)}
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, &ManifestError{Errors: convertCUEErrors(err)}
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return p.extractManifest(val, files)
}

// extractManifest checks a CUE value against the manifest schema and
// decodes it. Datasources may be a list or a struct keyed by name.
func (p *ManifestParser) extractManifest(val cue.Value, sourceFiles []string) (*Manifest, error) {
	def, err := p.schema.compile(p.ctx)
	if err != nil {
		return nil, err
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &ManifestError{Errors: convertCUEErrors(err)}
	}

	manifest := &Manifest{SourceFiles: sourceFiles}
	var verrs []ValidationError

	if v := unified.LookupPath(cue.ParsePath("server")); v.Exists() {
		if err := v.Decode(&manifest.Server); err != nil {
			verrs = append(verrs, ValidationError{Path: "server", Message: err.Error()})
		}
	}
	if v := unified.LookupPath(cue.ParsePath("profiles")); v.Exists() {
		if err := v.Decode(&manifest.Profiles); err != nil {
			verrs = append(verrs, ValidationError{Path: "profiles", Message: err.Error()})
		}
	}

	dsVal := unified.LookupPath(cue.ParsePath("datasources"))
	switch dsVal.IncompleteKind() {
	case cue.StructKind:
		iter, err := dsVal.Fields()
		if err != nil {
			verrs = append(verrs, ValidationError{
				Path:    "datasources",
				Message: fmt.Sprintf("failed to iterate datasources: %v", err),
			})
			break
		}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			entry, err := decodeEntry(key, iter.Value())
			if err != nil {
				verrs = append(verrs, ValidationError{
					Path:    "datasources." + key,
					Message: err.Error(),
				})
				continue
			}
			manifest.Datasources = append(manifest.Datasources, entry)
		}

	case cue.ListKind:
		list, err := dsVal.List()
		if err != nil {
			verrs = append(verrs, ValidationError{
				Path:    "datasources",
				Message: fmt.Sprintf("failed to list datasources: %v", err),
			})
			break
		}
		idx := 0
		for list.Next() {
			entry, err := decodeEntry("", list.Value())
			if err != nil {
				verrs = append(verrs, ValidationError{
					Path:    fmt.Sprintf("datasources[%d]", idx),
					Message: err.Error(),
				})
			} else {
				manifest.Datasources = append(manifest.Datasources, entry)
			}
			idx++
		}
	}

	if len(verrs) > 0 {
		return nil, &ManifestError{Errors: verrs}
	}
	return manifest, nil
}

// decodeEntry decodes one datasource. A struct key becomes the name unless
// the entry sets one.
func decodeEntry(key string, val cue.Value) (DatasourceEntry, error) {
	var entry DatasourceEntry
	if err := val.Decode(&entry); err != nil {
		return entry, fmt.Errorf("failed to decode datasource: %w", err)
	}
	if entry.Name == "" && key != "" {
		entry.Name = key
	}
	return entry, nil
}

// check validates the decoded manifest and converts every entry once so that
// bad isolation levels and pool sizes surface before anything is applied.
func (p *ManifestParser) check(m *Manifest) []ValidationError {
	var verrs []ValidationError

	if len(m.Datasources) == 0 {
		return []ValidationError{{Path: "datasources", Message: "no datasources declared"}}
	}

	if err := p.validator.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verrs = append(verrs, ValidationError{
					Path:    fe.Namespace(),
					Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				})
			}
		} else {
			verrs = append(verrs, ValidationError{Message: err.Error()})
		}
		return verrs
	}

	seen := make(map[string]int, len(m.Datasources))
	for i := range m.Datasources {
		path := fmt.Sprintf("datasources[%d]", i)
		spec, err := m.Datasources[i].ToSpec()
		if err != nil {
			verrs = append(verrs, ValidationError{Path: path, Message: err.Error()})
			continue
		}
		if prev, dup := seen[spec.Name]; dup {
			verrs = append(verrs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("datasource %s is already declared at datasources[%d]", spec.Name, prev),
			})
			continue
		}
		seen[spec.Name] = i
	}

	return verrs
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var verrs []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		verrs = append(verrs, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		})
	}

	if len(verrs) == 0 {
		verrs = append(verrs, ValidationError{Message: err.Error()})
	}
	return verrs
}

// manifestFiles lists the files a change to which should trigger a reload.
func manifestFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isManifestFile(e.Name()) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}
