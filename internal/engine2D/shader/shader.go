// Package shader compiles and links GLSL programs on a gpu.Device and turns
// backend diagnostics into typed errors.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/utils"
)

// ErrIncompleteProgram is matched by errors.Is when Build is called before
// both stages were supplied.
var ErrIncompleteProgram = errors.New("shader: program is missing a stage")

// CompileError carries the compiler log of a stage that failed to compile.
type CompileError struct {
	Stage gpu.Stage
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader: %s stage failed to compile: %s", e.Stage, strings.TrimSpace(e.Log))
}

// LinkError carries the linker log of a program that failed to link.
type LinkError struct {
	Log string
}

func (e *LinkError) Error() string {
	return "shader: program failed to link: " + strings.TrimSpace(e.Log)
}

type IncompleteProgramError struct {
	Missing []gpu.Stage
}

func (e *IncompleteProgramError) Error() string {
	names := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		names[i] = s.String()
	}
	return "shader: program is missing " + strings.Join(names, " and ") + " stage"
}

func (e *IncompleteProgramError) Unwrap() error { return ErrIncompleteProgram }

// Compile creates and compiles one stage. On failure the shader object is
// released and a *CompileError is returned.
func Compile(dev gpu.Device, stage gpu.Stage, source string) (gpu.ShaderID, error) {
	id := dev.CreateShader(stage)
	if log, ok := dev.CompileShader(id, source); !ok {
		dev.DeleteShader(id)
		utils.Debug("Shader: %s stage rejected: %s", stage, strings.TrimSpace(log))
		return 0, &CompileError{Stage: stage, Log: log}
	}
	return id, nil
}

// Link links two compiled stages into a program. On failure the program
// object is released and a *LinkError is returned. The stages stay owned by
// the caller either way.
func Link(dev gpu.Device, vertex, fragment gpu.ShaderID) (*Program, error) {
	id := dev.CreateProgram()
	if log, ok := dev.LinkProgram(id, vertex, fragment); !ok {
		dev.DeleteProgram(id)
		return nil, &LinkError{Log: log}
	}
	return &Program{ID: id, dev: dev, locations: make(map[string]int32)}, nil
}

// Program is a linked program plus a cache of its uniform locations.
type Program struct {
	ID        gpu.ProgramID
	dev       gpu.Device
	locations map[string]int32
}

// Location returns the uniform location of name, -1 when the program has no
// such active uniform.
func (p *Program) Location(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := p.dev.UniformLocation(p.ID, name)
	p.locations[name] = loc
	return loc
}

func (p *Program) Use() {
	p.dev.UseProgram(p.ID)
}

// Release deletes the program. It is safe to call more than once.
func (p *Program) Release() {
	if p == nil || p.ID == 0 {
		return
	}
	p.dev.DeleteProgram(p.ID)
	p.ID = 0
}

// Builder assembles a program from one vertex and one fragment stage. Each
// stage is compiled as soon as it is supplied; the first failure sticks and
// is returned from Build.
type Builder struct {
	dev      gpu.Device
	vertex   gpu.ShaderID
	fragment gpu.ShaderID
	err      error
}

func NewBuilder(dev gpu.Device) *Builder {
	return &Builder{dev: dev}
}

func (b *Builder) Vertex(source string) *Builder {
	b.vertex = b.stage(gpu.VertexStage, b.vertex, source)
	return b
}

func (b *Builder) Fragment(source string) *Builder {
	b.fragment = b.stage(gpu.FragmentStage, b.fragment, source)
	return b
}

func (b *Builder) stage(stage gpu.Stage, previous gpu.ShaderID, source string) gpu.ShaderID {
	if b.err != nil {
		return previous
	}
	if previous != 0 {
		b.dev.DeleteShader(previous)
	}
	id, err := Compile(b.dev, stage, Preprocess(source))
	if err != nil {
		b.err = err
		return 0
	}
	return id
}

// Build links the supplied stages. The intermediate shader objects are
// deleted whether or not linking succeeds.
func (b *Builder) Build() (*Program, error) {
	defer b.release()

	if b.err != nil {
		return nil, b.err
	}

	var missing []gpu.Stage
	if b.vertex == 0 {
		missing = append(missing, gpu.VertexStage)
	}
	if b.fragment == 0 {
		missing = append(missing, gpu.FragmentStage)
	}
	if len(missing) > 0 {
		return nil, &IncompleteProgramError{Missing: missing}
	}

	return Link(b.dev, b.vertex, b.fragment)
}

func (b *Builder) release() {
	if b.vertex != 0 {
		b.dev.DeleteShader(b.vertex)
		b.vertex = 0
	}
	if b.fragment != 0 {
		b.dev.DeleteShader(b.fragment)
		b.fragment = 0
	}
}
