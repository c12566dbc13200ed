package backupset

import (
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
)

// Loader produces the decoded layout of a backup file
type Loader interface {
	Load(path string) (*mrimg.FileLayout, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(path string) (*mrimg.FileLayout, error)

// Load calls f(path)
func (f LoaderFunc) Load(path string) (*mrimg.FileLayout, error) {
	return f(path)
}

// FileLoader decodes layouts from disk and remembers them by path, so a file
// shared by the chains of several partitions is decoded once per restore.
type FileLoader struct {
	Options mrimg.Options

	layouts map[string]*mrimg.FileLayout
}

// NewFileLoader returns a loader using the given parser options
func NewFileLoader(opts mrimg.Options) *FileLoader {
	return &FileLoader{Options: opts, layouts: make(map[string]*mrimg.FileLayout)}
}

// Add records an already decoded layout under its path
func (l *FileLoader) Add(layout *mrimg.FileLayout) {
	l.layouts[layout.Path] = layout
}

// Load returns the layout for path, decoding it on first use
func (l *FileLoader) Load(path string) (*mrimg.FileLayout, error) {
	if layout, ok := l.layouts[path]; ok {
		return layout, nil
	}
	layout, err := mrimg.ReadFileLayout(path, l.Options)
	if err != nil {
		return nil, err
	}
	l.layouts[path] = layout
	return layout, nil
}
