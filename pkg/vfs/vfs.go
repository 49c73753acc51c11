// Package vfs is an in-memory file store. The compiler reads imported
// units from it and the build command stages generated outputs in it
// before writing them to the host in one step.
package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultQuota is the capacity of a disk created by NewVirtualDisk.
const DefaultQuota = 64 << 20

// validPath accepts slash separated relative paths whose segments start
// with a letter, digit or underscore. "..", "." and absolute paths never
// match.
var validPath = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*(/[A-Za-z0-9_][A-Za-z0-9_.-]*)*$`)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidPath   = errors.New("invalid path")
	ErrQuotaExceeded = errors.New("disk quota exceeded")
)

type FileEntry struct {
	Data     []byte
	Created  time.Time
	Modified time.Time
}

// VirtualDisk is safe for concurrent use.
type VirtualDisk struct {
	mu         sync.RWMutex
	files      map[string]*FileEntry
	dirtyFiles map[string]bool
	usedBytes  int
	quota      int
}

// NewVirtualDisk creates an empty disk holding at most DefaultQuota bytes.
func NewVirtualDisk() *VirtualDisk {
	return &VirtualDisk{
		files:      make(map[string]*FileEntry),
		dirtyFiles: make(map[string]bool),
		quota:      DefaultQuota,
	}
}

// ValidPath reports whether name can be stored on a disk.
func ValidPath(name string) bool {
	return validPath.MatchString(name)
}

// Write stores a copy of data under name, replacing any previous content.
func (vd *VirtualDisk) Write(name string, data []byte) error {
	vd.mu.Lock()
	defer vd.mu.Unlock()

	if !validPath.MatchString(name) {
		return ErrInvalidPath
	}

	oldSize := 0
	entry, exists := vd.files[name]
	if exists {
		oldSize = len(entry.Data)
	}

	newSize := len(data)
	if vd.usedBytes-oldSize+newSize > vd.quota {
		return ErrQuotaExceeded
	}

	// Deep copy data to prevent external mutations
	newData := make([]byte, newSize)
	copy(newData, data)

	if !exists {
		entry = &FileEntry{Created: time.Now()}
		vd.files[name] = entry
	}
	entry.Data = newData
	entry.Modified = time.Now()

	vd.dirtyFiles[name] = true
	vd.usedBytes += newSize - oldSize
	return nil
}

// Read returns a copy of the content stored under name.
func (vd *VirtualDisk) Read(name string) ([]byte, error) {
	vd.mu.RLock()
	defer vd.mu.RUnlock()

	if !validPath.MatchString(name) {
		return nil, ErrInvalidPath
	}
	entry, ok := vd.files[name]
	if !ok {
		return nil, ErrFileNotFound
	}
	return append([]byte(nil), entry.Data...), nil
}

// Size returns the size of a file in bytes.
func (vd *VirtualDisk) Size(name string) (int, error) {
	vd.mu.RLock()
	defer vd.mu.RUnlock()

	if !validPath.MatchString(name) {
		return 0, ErrInvalidPath
	}
	entry, ok := vd.files[name]
	if !ok {
		return 0, ErrFileNotFound
	}
	return len(entry.Data), nil
}

// UsedBytes returns the total size of all stored files.
func (vd *VirtualDisk) UsedBytes() int {
	vd.mu.RLock()
	defer vd.mu.RUnlock()
	return vd.usedBytes
}

// List returns the sorted names of all stored files.
func (vd *VirtualDisk) List() []string {
	vd.mu.RLock()
	defer vd.mu.RUnlock()

	keys := make([]string, 0, len(vd.files))
	for k := range vd.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadFrom copies the files below the host directory root whose names end
// in ext onto the disk under prefix ("" for the disk root), keyed by their
// slash separated path. Hidden directories and files whose path is not
// valid on the disk are skipped. A missing root loads nothing. Loaded files
// are not persisted by PersistTo.
func (vd *VirtualDisk) LoadFrom(root, prefix, ext string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	type loaded struct {
		name  string
		entry *FileEntry
	}
	var found []loaded
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		if !validPath.MatchString(name) {
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entry := &FileEntry{Data: raw, Created: time.Now(), Modified: time.Now()}
		if info, err := d.Info(); err == nil {
			entry.Created = info.ModTime()
			entry.Modified = info.ModTime()
		}
		found = append(found, loaded{name, entry})
		return nil
	})
	if err != nil {
		return err
	}

	vd.mu.Lock()
	defer vd.mu.Unlock()
	used := vd.usedBytes
	for _, f := range found {
		if old, ok := vd.files[f.name]; ok {
			used -= len(old.Data)
		}
		used += len(f.entry.Data)
	}
	if used > vd.quota {
		return ErrQuotaExceeded
	}
	for _, f := range found {
		vd.files[f.name] = f.entry
	}
	vd.usedBytes = used
	return nil
}

// PersistTo writes all dirty files to the host directory root, creating
// directories as needed. It returns the first error encountered; files
// that failed stay dirty.
func (vd *VirtualDisk) PersistTo(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	// Snapshot the dirty files under the lock, then release before doing I/O.
	vd.mu.Lock()
	snapshot := make(map[string]*FileEntry)
	for name := range vd.dirtyFiles {
		if entry, ok := vd.files[name]; ok {
			snapshot[name] = &FileEntry{
				Data:     append([]byte(nil), entry.Data...),
				Created:  entry.Created,
				Modified: entry.Modified,
			}
		}
		delete(vd.dirtyFiles, name)
	}
	vd.mu.Unlock()

	var firstErr error
	record := func(name string, err error) {
		vd.mu.Lock()
		vd.dirtyFiles[name] = true
		vd.mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := snapshot[name]
		dst := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			record(name, err)
			continue
		}
		if err := os.WriteFile(dst, entry.Data, 0644); err != nil {
			record(name, err)
			continue
		}
		_ = os.Chtimes(dst, time.Now(), entry.Modified)
	}
	return firstErr
}
