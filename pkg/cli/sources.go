package cli

import (
	"path"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"whitfield/pkg/compiler"
	"whitfield/pkg/utils"
	"whitfield/pkg/vfs"
)

// Disk layout of one compilation: the input's directory is mounted at
// srcMount and include directory i at includeMount/i.
const (
	srcMount     = "src"
	includeMount = "include"
)

// loadSources copies the units below the input's directory and below each
// include directory onto a fresh disk and returns a loader over it.
func (a *app) loadSources(input string, include []string) (compiler.DiskLoader, error) {
	_, dir, err := utils.GetPathInfo(input)
	if err != nil {
		return compiler.DiskLoader{}, err
	}

	disk := vfs.NewVirtualDisk()
	if err := disk.LoadFrom(dir, srcMount, compiler.Ext); err != nil {
		return compiler.DiskLoader{}, errors.Wrapf(err, "load sources from %s", dir)
	}
	search := make([]string, len(include))
	for i, inc := range include {
		search[i] = path.Join(includeMount, strconv.Itoa(i))
		if err := disk.LoadFrom(inc, search[i], compiler.Ext); err != nil {
			return compiler.DiskLoader{}, errors.Wrapf(err, "load sources from %s", inc)
		}
	}

	a.log.Debug("Loaded sources",
		zap.String("dir", dir),
		zap.Strings("include", include),
		zap.Int("units", len(disk.List())),
		zap.Int("bytes", disk.UsedBytes()))
	return compiler.DiskLoader{Disk: disk, BaseDir: srcMount, SearchPaths: search}, nil
}

// newCompiler returns a compiler whose imports resolve against input's
// directory and the include directories.
func (a *app) newCompiler(input string, include []string) (*compiler.Compiler, error) {
	loader, err := a.loadSources(input, include)
	if err != nil {
		return nil, err
	}
	return compiler.New(loader, a.log)
}
