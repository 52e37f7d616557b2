// Command flintdemo renders spinning cubes into an off-screen render target.
//
// It runs headless on the noop backend unless another backend is linked in
// and selected with -backend or FLINT_BACKEND. Settings are read from .env
// files first, then from the environment, then from flags.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/flint"
	"github.com/gogpu/flint/shaderc"
)

const cubeShader = `
struct Uniforms {
	mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;

struct VertexOutput {
	@builtin(position) position: vec4<f32>,
	@location(0) color: vec3<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) color: vec3<f32>) -> VertexOutput {
	var out: VertexOutput;
	out.position = u.mvp * vec4<f32>(position, 1.0);
	out.color = color;
	return out;
}

@fragment
fn fs_main(@location(0) color: vec3<f32>) -> @location(0) vec4<f32> {
	return vec4<f32>(color, 1.0);
}
`

func main() {
	var (
		envFile = flag.String("env", ".env", "file with FLINT_* settings")
		backend = flag.String("backend", "", "HAL backend (overrides FLINT_BACKEND)")
		width   = flag.Int("width", 800, "target width")
		height  = flag.Int("height", 600, "target height")
		frames  = flag.Int("frames", 120, "frames to render")
		threads = flag.Int("threads", -1, "recording threads (-1 uses FLINT_THREADS)")
		cubes   = flag.Int("cubes", 8, "geometry stores to draw")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	flint.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := flint.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *threads >= 0 {
		cfg.ThreadCount = *threads
	}

	if err := run(cfg, flint.Extent2D{Width: uint32(*width), Height: uint32(*height)}, *frames, *cubes); err != nil {
		log.Fatalf("flintdemo: %v", err)
	}
}

func run(cfg flint.Config, extent flint.Extent2D, frames, cubes int) error {
	inst, err := flint.NewInstance(cfg)
	if err != nil {
		return err
	}
	defer inst.Terminate()

	dev, err := inst.CreateDevice()
	if err != nil {
		return err
	}
	defer dev.Terminate()

	cmds, err := dev.CreateCommandBufferList(cfg.BufferCount)
	if err != nil {
		return err
	}
	defer cmds.Terminate()

	rt, err := dev.CreateOffScreenRenderTarget(extent, cfg.BufferCount, cmds, cfg.ThreadCount,
		flint.WithLabel("flintdemo"),
		flint.WithClearColor(0.05, 0.05, 0.1, 1))
	if err != nil {
		return err
	}
	defer rt.Terminate()

	vs, err := shaderc.CreateShader(dev, "cube.vert", cubeShader, flint.ShaderTypeVertex)
	if err != nil {
		return err
	}
	defer vs.Terminate()
	fs, err := shaderc.CreateShader(dev, "cube.frag", cubeShader, flint.ShaderTypeFragment)
	if err != nil {
		return err
	}
	defer fs.Terminate()

	pipeline, err := dev.CreateGraphicsPipeline("flintdemo.cube", rt,
		flint.GraphicsShaders{Vertex: vs, Fragment: fs},
		flint.DefaultGraphicsPipelineSpecification())
	if err != nil {
		return err
	}
	defer pipeline.Terminate()

	ubo, err := dev.CreateBuffer(64, flint.BufferTypeUniform, flint.BufferMemoryAutomatic)
	if err != nil {
		return err
	}
	defer ubo.Terminate()

	packager, err := pipeline.CreateResourcePackager(0)
	if err != nil {
		return err
	}
	pkg, err := packager.CreatePackage()
	if err != nil {
		return err
	}
	defer pkg.Terminate()
	if err := pkg.BindBuffer(0, ubo, 0); err != nil {
		return err
	}

	dyn := flint.NewDynamicStateContainer()
	dyn.SetViewport(flint.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
	dyn.SetScissor(flint.Scissor{Width: extent.Width, Height: extent.Height})

	vertices, indices := cube()
	for range cubes {
		store, err := dev.CreateGeometryStore(vs.Inputs(), 2, flint.BufferMemoryAutomatic)
		if err != nil {
			return err
		}
		defer store.Terminate()
		if _, _, err := store.AddGeometry(vertices, indices); err != nil {
			return err
		}
		if err := rt.SubmitPipeline(store, pipeline); err != nil {
			return err
		}
	}
	if _, err := pipeline.AddDrawData(flint.DrawData{
		Packages:      []*flint.ResourcePackage{pkg},
		DynamicStates: dyn,
		VertexCount:   24,
		IndexCount:    36,
	}); err != nil {
		return err
	}

	if err := rt.InitiateThreads(); err != nil {
		return err
	}

	ctx := context.Background()
	aspect := float32(extent.Width) / float32(extent.Height)
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{3, 3, 3}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	start := time.Now()
	for i := range frames {
		model := mgl32.HomogRotate3D(mgl32.DegToRad(float32(i)), mgl32.Vec3{0, 1, 0})
		if err := ubo.Write(0, matrixBytes(proj.Mul4(view).Mul4(model))); err != nil {
			return err
		}
		if err := rt.SubmitFrame(ctx); err != nil {
			return err
		}
	}

	stats := rt.Stats()
	flint.Logger().Info("flintdemo: done",
		"frames", stats.Frames,
		"draws_per_frame", stats.DrawCalls,
		"last_frame", stats.LastFrame,
		"elapsed", time.Since(start),
		"threads", rt.ThreadCount())
	return nil
}

func matrixBytes(m mgl32.Mat4) []byte {
	b := make([]byte, 0, 64)
	for _, f := range m {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// cube returns 24 vertices (position, color) and 36 uint16 indices.
func cube() (vertices, indices []byte) {
	faces := [6]struct {
		n, u, v mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	put := func(v mgl32.Vec3) {
		for _, f := range v {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(f))
		}
	}
	for i, f := range faces {
		color := mgl32.Vec3{f.n.X()*0.5 + 0.5, f.n.Y()*0.5 + 0.5, f.n.Z()*0.5 + 0.5}
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			put(f.n.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5))
			put(color)
		}
		base := uint16(i * 4)
		for _, k := range [6]uint16{0, 1, 2, 2, 3, 0} {
			indices = binary.LittleEndian.AppendUint16(indices, base+k)
		}
	}
	return vertices, indices
}
