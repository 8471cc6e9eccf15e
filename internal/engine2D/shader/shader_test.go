package shader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedbackwarp/internal/engine2D/kernel"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/gpu/soft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice() *soft.Device {
	return soft.New(4, 4,
		soft.WithKernel(Embedded(SeedFragment), kernel.Seed),
		soft.WithKernel(Embedded(WarpFragment), kernel.NewWarp()),
	)
}

func TestBuildEmbeddedPrograms(t *testing.T) {
	dev := newDevice()
	src := Sources{}

	seed, err := src.Program(NewBuilder(dev), QuadVertex, SeedFragment)
	require.NoError(t, err)
	warp, err := src.Program(NewBuilder(dev), QuadVertex, WarpFragment)
	require.NoError(t, err)
	assert.NotEqual(t, seed.ID, warp.ID)

	shaders, programs, _ := dev.Live()
	assert.Equal(t, 0, shaders, "stage objects are released after linking")
	assert.Equal(t, 2, programs)

	seed.Release()
	seed.Release()
	warp.Release()
	_, programs, _ = dev.Live()
	assert.Equal(t, 0, programs)
}

func TestCompileErrorCarriesLog(t *testing.T) {
	dev := newDevice()

	_, err := NewBuilder(dev).
		Vertex(Embedded(QuadVertex)).
		Fragment("#version 330\nvoid main() { finalColor = vec4(1.0;\n}").
		Build()
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, gpu.FragmentStage, ce.Stage)
	assert.Contains(t, ce.Log, "syntax error")
	assert.Contains(t, err.Error(), "fragment")

	shaders, programs, _ := dev.Live()
	assert.Equal(t, 0, shaders)
	assert.Equal(t, 0, programs)
}

func TestCompileReleasesFailedShader(t *testing.T) {
	dev := newDevice()
	_, err := Compile(dev, gpu.VertexStage, "#version 330\n")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, gpu.VertexStage, ce.Stage)

	shaders, _, _ := dev.Live()
	assert.Equal(t, 0, shaders)
}

func TestBuildWithoutFragmentIsIncomplete(t *testing.T) {
	dev := newDevice()
	_, err := NewBuilder(dev).Vertex(Embedded(QuadVertex)).Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteProgram))

	var ie *IncompleteProgramError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []gpu.Stage{gpu.FragmentStage}, ie.Missing)

	_, err = NewBuilder(dev).Build()
	require.True(t, errors.As(err, &ie))
	assert.Len(t, ie.Missing, 2)

	shaders, programs, _ := dev.Live()
	assert.Equal(t, 0, shaders)
	assert.Equal(t, 0, programs)
}

func TestLinkErrorReleasesProgram(t *testing.T) {
	dev := newDevice()
	vs, err := Compile(dev, gpu.VertexStage, Embedded(QuadVertex))
	require.NoError(t, err)
	defer dev.DeleteShader(vs)

	_, err = Link(dev, vs, vs)
	var le *LinkError
	require.True(t, errors.As(err, &le))
	assert.NotEmpty(t, le.Log)

	_, programs, _ := dev.Live()
	assert.Equal(t, 0, programs)
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "#version 330\nvoid main() {}", Preprocess("void main() {}"))
	assert.Equal(t, "#version 330\nvoid main() {}", Preprocess("\ufeff#version 330\nvoid main() {}"))

	warp := Embedded(WarpFragment)
	assert.Equal(t, warp, Preprocess(warp))
	assert.Equal(t, "// header\n#version 100\n", Preprocess("// header\n#version 100\n"))
}

func TestQuadVertexWritesDefaultVaryings(t *testing.T) {
	vs := Embedded(QuadVertex)
	for _, line := range []string{
		"out vec2 fragTexCoord;",
		"out vec4 fragColor;",
		"fragTexCoord = vertexTexCoord;",
		"fragColor = vertexColor;",
	} {
		assert.Contains(t, vs, line)
	}
}

func TestSourcesPreferDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WarpFragment), []byte("custom"), 0o644))

	src := Sources{Dir: dir}
	got, err := src.Load(WarpFragment)
	require.NoError(t, err)
	assert.Equal(t, "custom", got)

	got, err = src.Load(SeedFragment)
	require.NoError(t, err)
	assert.Equal(t, Embedded(SeedFragment), got)

	_, err = src.Load("missing.frag")
	assert.Error(t, err)
}

func TestResolveParametersCachesLocations(t *testing.T) {
	dev := newDevice()
	warp, err := Sources{}.Program(NewBuilder(dev), QuadVertex, WarpFragment)
	require.NoError(t, err)

	params := ResolveParameters(warp)
	for _, loc := range []int32{params.Resolution, params.Time, params.Texture, params.TextureAlt, params.Noise, params.UseAlt} {
		assert.GreaterOrEqual(t, loc, int32(0))
	}
	assert.Equal(t, params.TextureAlt, warp.Location("u_texture_alt"))
}

func TestWatcherReportsShaderWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, WarpFragment), []byte("void main() {}"), 0o644))

	var names []string
	deadline := time.After(5 * time.Second)
	for len(names) == 0 {
		select {
		case <-w.Changed():
			names = append(names, w.Pending()...)
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
	assert.Contains(t, names, WarpFragment)
	assert.NotContains(t, names, "notes.txt")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
