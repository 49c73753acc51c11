package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"whitfield/pkg/vfs"
)

func newDisk(t *testing.T, files map[string]string) *vfs.VirtualDisk {
	t.Helper()
	disk := vfs.NewVirtualDisk()
	for name, text := range files {
		require.NoError(t, disk.Write(name, []byte(text)))
	}
	return disk
}

// expandImports parses src as a main unit and runs only the Importer.
func expandImports(t *testing.T, loader Loader, src string) (*Program, error) {
	t.Helper()
	prog, err := ParseProgram("main.wht", src)
	require.NoError(t, err)
	im := &Importer{Loader: loader, Log: zaptest.NewLogger(t)}
	return prog, im.Run(prog)
}

func TestImportEquivalence(t *testing.T) {
	lib := "A = 5;\nfoo(a, b, c)(x, y, z) {\n  x = a + b + A;\n  y = b + c + A;\n  z = a + c + A;\n}\n"
	disk := newDisk(t, map[string]string{"tests/importer.wht": lib})

	c, err := New(DiskLoader{Disk: disk}, zaptest.NewLogger(t))
	require.NoError(t, err)

	imported, err := c.Compile("main.wht", "field 2 @ 255 - 19;\nimport tests/importer;\n")
	require.NoError(t, err)
	inlined, err := c.Compile("main.wht", "field 2 @ 255 - 19;\n"+lib)
	require.NoError(t, err)

	require.Equal(t, inlined.String(), imported.String())
	require.Equal(t,
		"A = 5; foo(a, b, c)(x, y, z) { x = ((a + b) + 5); y = ((b + c) + 5); z = ((a + c) + 5); }",
		itemsString(imported))

	want, err := Render(LLVMGenerator{}, inlined)
	require.NoError(t, err)
	got, err := Render(LLVMGenerator{}, imported)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestImportKeepsItemOrder(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"mid.wht": "m = 2;",
	})
	prog, err := expandImports(t, DiskLoader{Disk: disk}, "field 7; a = 1; import mid; z = 3;")
	require.NoError(t, err)
	require.Equal(t, "a = 1; m = 2; z = 3;", itemsString(prog))
}

func TestImportNested(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"lib/outer.wht": "import inner; B = A + 1;",
		"lib/inner.wht": "A = 1;",
		"inner.wht":     "A = 99;",
	})
	prog, err := expandImports(t, DiskLoader{Disk: disk}, "field 7; import lib/outer;")
	require.NoError(t, err)
	require.Equal(t, "A = 1; B = (A + 1);", itemsString(prog))
}

func TestImportSearchPaths(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"std/curve.wht": "G = 9;",
		"std/y.wht":     "Y = 2;",
		"app/x.wht":     "import y;",
		"app/y.wht":     "Y = 1;",
	})
	loader := DiskLoader{Disk: disk, SearchPaths: []string{"std"}}

	prog, err := expandImports(t, loader, "field 11; import curve;")
	require.NoError(t, err)
	require.Equal(t, "G = 9;", itemsString(prog))

	// The importing unit's directory wins over the search path.
	prog, err = expandImports(t, loader, "field 11; import app/x;")
	require.NoError(t, err)
	require.Equal(t, "Y = 1;", itemsString(prog))
}

func TestImportCycle(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		chain string
	}{
		{
			name:  "Self",
			files: map[string]string{"a.wht": "import a;"},
			chain: "a.wht -> a.wht",
		},
		{
			name:  "Pair",
			files: map[string]string{"a.wht": "import b;", "b.wht": "x = 1; import a;"},
			chain: "a.wht -> b.wht -> a.wht",
		},
		{
			name: "Through a directory",
			files: map[string]string{
				"a.wht":     "import lib/b;",
				"lib/b.wht": "import c;",
				"lib/c.wht": "import b;",
			},
			chain: "a.wht -> lib/b.wht -> lib/c.wht -> lib/b.wht",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandImports(t, DiskLoader{Disk: newDisk(t, tt.files)}, "field 7; import a;")
			require.Equal(t, KindImport, KindOf(err))
			require.Contains(t, err.Error(), "import cycle: "+tt.chain)
		})
	}
}

func TestImportDiamond(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"left.wht":  "import base; L = A + 1;",
		"right.wht": "import base; R = A + 2;",
		"base.wht":  "A = 1;",
	})
	core, logs := observer.New(zap.DebugLevel)
	c, err := New(DiskLoader{Disk: disk}, zap.New(core))
	require.NoError(t, err)

	prog, err := c.Compile("main.wht", "field 7; import left; import right;")
	require.NoError(t, err)
	require.Equal(t, "A = 1; L = 2; R = 3;", itemsString(prog))

	require.Equal(t, 3, logs.FilterMessage("Imported unit").Len())
	skipped := logs.FilterMessage("Import already expanded").All()
	require.Len(t, skipped, 1)
	require.Equal(t, "base.wht", skipped[0].ContextMap()["unit"])
}

func TestImportErrors(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"bad.wht":   "x = ;",
		"field.wht": "field 7;",
		"deep.wht":  "import gone;",
	})
	tests := []struct {
		name   string
		src    string
		substr string
	}{
		{"Missing unit", "field 7; import nope;", `import "nope": nope.wht (searched nope.wht): unit not found`},
		{"Missing nested unit", "field 7; import deep;", `import "gone"`},
		{"Syntax error in unit", "field 7; import bad;", "syntax error: bad.wht:1:5: expected expression"},
		{"Field declaration in unit", "field 7; import field;", "expected import, constant or function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandImports(t, DiskLoader{Disk: disk}, tt.src)
			require.Equal(t, KindImport, KindOf(err))
			require.Contains(t, err.Error(), tt.substr)
		})
	}

	_, err := expandImports(t, DiskLoader{Disk: disk}, "field 7; import nope;")
	require.ErrorIs(t, err, ErrUnitNotFound)
}

func TestDiskLoaderBaseDir(t *testing.T) {
	disk := newDisk(t, map[string]string{
		"src/ops/sq.wht": "import sum; sq(a)(b) { b = a * a; }",
		"std/sum.wht":    "S = 4;",
	})
	loader := DiskLoader{Disk: disk, BaseDir: "src", SearchPaths: []string{"std"}}

	unit, err := loader.Load("", "ops/sq")
	require.NoError(t, err)
	require.Equal(t, "src/ops/sq.wht", unit.Name)
	require.Equal(t, "src/ops", unit.Dir)
	require.True(t, strings.HasPrefix(unit.Text, "import sum;"))

	unit, err = loader.Load(unit.Dir, "sum")
	require.NoError(t, err)
	require.Equal(t, "std/sum.wht", unit.Name)

	_, err = loader.Load("", "missing")
	require.ErrorIs(t, err, ErrUnitNotFound)
	require.ErrorContains(t, err, "searched src/missing.wht, std/missing.wht")

	prog, err := expandImports(t, loader, "field 13; import ops/sq;")
	require.NoError(t, err)
	require.Equal(t, "S = 4; sq(a)(b) { b = (a * a); }", itemsString(prog))
}
