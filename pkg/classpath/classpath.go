// Package classpath locates class file bytes by binary class name in
// directories, jar/zip archives and JDK jmod files.
package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

// ErrNotFound is returned when an entry has no class of the requested name.
var ErrNotFound = errors.New("class not found on classpath")

var log = commonlog.GetLogger("jjvm.classpath")

// Entry is one element of a class path.
type Entry interface {
	ReadClass(name string) ([]byte, error)
	String() string
}

// Dir reads classes from files under a directory, one file per class:
// java/lang/Foo is read from <dir>/java/lang/Foo.class.
type Dir string

func (d Dir) ReadClass(name string) ([]byte, error) {
	path := filepath.Join(string(d), filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, string(d))
		}
		return nil, fmt.Errorf("dir: reading %s: %w", path, err)
	}
	log.Debugf("read %s from %s", name, path)
	return data, nil
}

func (d Dir) String() string { return string(d) }

// jmodMagic prefixes the zip payload of a jmod file.
var jmodMagic = []byte("JM\x01\x00")

// Archive reads classes from a jar, zip or jmod file. The file is read and
// indexed on first use. Classes are looked up at the archive root and, for
// jmod files, under classes/.
type Archive struct {
	Path string

	index map[string]*zip.File
	err   error
}

// NewArchive creates an Archive for path without opening it.
func NewArchive(path string) *Archive {
	return &Archive{Path: path}
}

func (a *Archive) ensureIndex() error {
	if a.index != nil || a.err != nil {
		return a.err
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		a.err = fmt.Errorf("archive: reading %s: %w", a.Path, err)
		return a.err
	}
	if bytes.HasPrefix(data, jmodMagic) {
		data = data[len(jmodMagic):] // Skip "JM\x01\x00" header
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		a.err = fmt.Errorf("archive: opening zip %s: %w", a.Path, err)
		return a.err
	}

	a.index = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		name, ok := strings.CutSuffix(f.Name, ".class")
		if !ok {
			continue
		}
		if _, dup := a.index[name]; !dup {
			a.index[name] = f
		}
	}
	log.Debugf("indexed %d classes in %s", len(a.index), a.Path)
	return nil
}

func (a *Archive) ReadClass(name string) ([]byte, error) {
	if err := a.ensureIndex(); err != nil {
		return nil, err
	}
	f, ok := a.index[name]
	if !ok {
		f, ok = a.index["classes/"+name]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, a.Path)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s: %w", f.Name, err)
	}
	log.Debugf("read %s from %s", name, a.Path)
	return data, nil
}

func (a *Archive) String() string { return a.Path }

// Path is an ordered class path. The first entry holding a class wins.
type Path []Entry

// ReadClass tries each entry in order, skipping those that report
// ErrNotFound. Any other error stops the search.
func (p Path) ReadClass(name string) ([]byte, error) {
	for _, e := range p {
		data, err := e.ReadClass(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.String()
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// Parse builds a Path from class path strings. Each string may itself hold
// several elements separated by the OS path list separator. Elements ending
// in .jar, .zip or .jmod become archives; everything else is a directory.
func Parse(list ...string) Path {
	var p Path
	for _, s := range list {
		for _, elem := range filepath.SplitList(s) {
			if elem == "" {
				continue
			}
			p = append(p, entryFor(elem))
		}
	}
	return p
}

func entryFor(elem string) Entry {
	switch strings.ToLower(filepath.Ext(elem)) {
	case ".jar", ".zip", ".jmod":
		return NewArchive(elem)
	}
	return Dir(elem)
}
