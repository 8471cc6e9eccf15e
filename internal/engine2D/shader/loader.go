package shader

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"feedbackwarp/internal/utils"
)

const (
	QuadVertex   = "quad.vert"
	SeedFragment = "seed.frag"
	WarpFragment = "warp.frag"
)

const versionLine = "#version 330"

//go:embed glsl
var embedded embed.FS

// Embedded returns a built-in source. It panics on unknown names, which
// only happens on a programming error.
func Embedded(name string) string {
	data, err := embedded.ReadFile("glsl/" + name)
	if err != nil {
		panic("shader: no embedded source " + name)
	}
	return string(data)
}

// Preprocess strips a byte order mark and prepends a version directive when
// the source has none. Sources that already declare a version come back
// unchanged apart from the mark.
func Preprocess(source string) string {
	source = strings.TrimPrefix(source, "\ufeff")
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "#version") {
			return source
		}
		break
	}
	return versionLine + "\n" + source
}

// Sources resolves shader sources, preferring files in Dir over the built-in
// copies. An empty Dir always yields the built-ins.
type Sources struct {
	Dir string
}

func (s Sources) Load(name string) (string, error) {
	if s.Dir != "" {
		path := filepath.Join(s.Dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			utils.Debug("Shader: %s loaded from %s", name, path)
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		utils.Debug("Shader: %s not found at %s, using built-in", name, path)
	}

	data, err := embedded.ReadFile("glsl/" + name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Program loads, compiles and links a vertex/fragment pair.
func (s Sources) Program(b *Builder, vertex, fragment string) (*Program, error) {
	vs, err := s.Load(vertex)
	if err != nil {
		return nil, err
	}
	frag, err := s.Load(fragment)
	if err != nil {
		return nil, err
	}
	return b.Vertex(vs).Fragment(frag).Build()
}
