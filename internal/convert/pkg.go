package convert

import (
	"fmt"
	"io"
	"os"
	"strings"

	"feedbackwarp/internal/utils"
)

// PkgSeparator splits an archive path from the entry inside it, as in
// "scene.pkg:materials/grain.tex".
const PkgSeparator = ".pkg:"

type FileEntry struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Pkg is an opened Wallpaper Engine package archive.
type Pkg struct {
	Version string
	Entries []FileEntry

	path      string
	dataStart int64
}

func readPkgString(r io.Reader) (string, error) {
	size, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// SplitPkgSource splits "archive.pkg:entry" sources. ok is false for plain paths.
func SplitPkgSource(source string) (archive, entry string, ok bool) {
	idx := strings.Index(strings.ToLower(source), PkgSeparator)
	if idx < 0 {
		return "", "", false
	}
	cut := idx + len(PkgSeparator)
	return source[:cut-1], source[cut:], true
}

// OpenPkg reads the directory of a package without extracting it.
func OpenPkg(path string) (*Pkg, error) {
	utils.Debug("Unpacker: Opening package %s", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	version, err := readPkgString(f)
	if err != nil {
		return nil, fmt.Errorf("read pkg version: %w", err)
	}

	fileCount, err := readUint32(f)
	if err != nil {
		return nil, fmt.Errorf("read pkg file count: %w", err)
	}
	utils.Debug("Unpacker: Package %s, version %s, %d files", path, version, fileCount)

	entries := make([]FileEntry, fileCount)
	for i := range entries {
		name, err := readPkgString(f)
		if err != nil {
			return nil, fmt.Errorf("read pkg entry %d: %w", i, err)
		}
		offset, err := readUint32(f)
		if err != nil {
			return nil, err
		}
		size, err := readUint32(f)
		if err != nil {
			return nil, err
		}
		entries[i] = FileEntry{Name: name, Offset: offset, Size: size}
	}

	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	return &Pkg{Version: version, Entries: entries, path: path, dataStart: dataStart}, nil
}

// ReadFile returns the bytes of a single entry.
func (p *Pkg) ReadFile(name string) ([]byte, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	for _, entry := range p.Entries {
		if entry.Name != name {
			continue
		}

		f, err := os.Open(p.path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		buf := make([]byte, entry.Size)
		if _, err := f.ReadAt(buf, p.dataStart+int64(entry.Offset)); err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", name, p.path, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%s: %w in %s", name, os.ErrNotExist, p.path)
}
