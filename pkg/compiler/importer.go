package compiler

import (
	"path"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"whitfield/pkg/vfs"
)

// Ext is the file extension of whitfield source units.
const Ext = ".wht"

// ErrUnitNotFound is returned by loaders when no candidate file exists.
var ErrUnitNotFound = errors.New("unit not found")

// Source is one unit of whitfield text.
type Source struct {
	// Name identifies the unit. Two loads of the same unit return the
	// same Name, which is what import cycle detection compares.
	Name string
	// Dir is the directory the unit's own imports resolve against.
	Dir  string
	Text string
}

// Loader resolves an import path. dir is the directory of the importing
// unit, or "" for imports of the main unit.
type Loader interface {
	Load(dir, importPath string) (*Source, error)
}

// DiskLoader reads units from an in-memory disk. Paths are slash
// separated. An import is resolved relative to the importing unit first
// (BaseDir for the main unit), then along SearchPaths.
type DiskLoader struct {
	Disk        *vfs.VirtualDisk
	BaseDir     string
	SearchPaths []string
}

func (l DiskLoader) Load(dir, importPath string) (*Source, error) {
	if dir == "" {
		dir = l.BaseDir
	}
	rel := importPath + Ext
	candidates := []string{path.Join(dir, rel)}
	for _, sp := range l.SearchPaths {
		candidates = append(candidates, path.Join(sp, rel))
	}

	for _, c := range candidates {
		data, err := l.Disk.Read(c)
		if errors.Is(err, vfs.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", c)
		}
		return &Source{Name: c, Dir: path.Dir(c), Text: string(data)}, nil
	}
	return nil, errors.Wrapf(ErrUnitNotFound, "%s (searched %s)", rel, strings.Join(candidates, ", "))
}

// Importer replaces every import with the items of the imported unit.
// Nested imports are expanded recursively. A unit that is already being
// expanded higher up the chain is an import cycle; a unit already spliced
// elsewhere is skipped.
type Importer struct {
	Loader Loader
	Log    *zap.Logger
}

func (*Importer) Name() string         { return "Importer" }
func (*Importer) RunsAfter() []string  { return nil }
func (*Importer) RunsBefore() []string { return []string{"LimitCondenser"} }

func (im *Importer) logger() *zap.Logger {
	if im.Log == nil {
		return zap.NewNop()
	}
	return im.Log
}

type importState struct {
	active map[string]bool // units on the current import chain
	done   map[string]bool // units already spliced
}

func (im *Importer) Run(prog *Program) error {
	st := &importState{active: make(map[string]bool), done: make(map[string]bool)}
	items, err := im.expand(prog.Items, "", st, nil)
	if err != nil {
		return err
	}
	prog.Items = items
	return nil
}

func (im *Importer) expand(items []Item, dir string, st *importState, chain []string) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		imp, ok := it.(*Import)
		if !ok {
			out = append(out, it)
			continue
		}

		src, err := im.Loader.Load(dir, imp.Path)
		if err != nil {
			return nil, importError(imp.Path, err)
		}
		if st.active[src.Name] {
			cycle := append(append([]string(nil), chain...), src.Name)
			return nil, &Error{
				Kind:   KindImport,
				Symbol: imp.Path,
				Msg:    "import cycle: " + strings.Join(cycle, " -> "),
			}
		}
		if st.done[src.Name] {
			im.logger().Debug("Import already expanded", zap.String("unit", src.Name))
			continue
		}
		st.done[src.Name] = true

		unitItems, err := ParseUnit(src.Name, src.Text)
		if err != nil {
			return nil, importError(imp.Path, err)
		}
		im.logger().Debug("Imported unit",
			zap.String("path", imp.Path),
			zap.String("unit", src.Name),
			zap.Int("items", len(unitItems)))

		st.active[src.Name] = true
		nested, err := im.expand(unitItems, src.Dir, st, append(append([]string(nil), chain...), src.Name))
		delete(st.active, src.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}
