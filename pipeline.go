package flint

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline is implemented by GraphicsPipeline and ComputePipeline.
type Pipeline interface {
	DeviceBoundObject

	// Name returns the cache key. An empty name disables caching.
	Name() string

	// RenderTarget returns the target the pipeline draws into.
	RenderTarget() RenderTarget

	// Resources returns the bindings declared by all stages, by set.
	Resources() ShaderResources

	// CreateResourcePackager returns the packager for set, creating it on
	// first use.
	CreateResourcePackager(set uint32) (*ResourcePackager, error)

	// WriteCache stores data in the pipeline cache file.
	WriteCache(data []byte) error

	// ReadCache returns the pipeline cache file contents, or nil when the
	// name is empty or the file does not exist.
	ReadCache() ([]byte, error)

	base() *pipelineBase
}

// pipelineBase holds what graphics and compute pipelines share: shader
// interface, bind group layouts, packagers and the cache file.
type pipelineBase struct {
	deviceObject

	self    Pipeline
	name    string
	target  RenderTarget
	shaders []*Shader

	resources  ShaderResources
	visibility map[uint32]map[uint32]gputypes.ShaderStages

	groupLayouts []hal.BindGroupLayout
	layout       hal.PipelineLayout

	packagersMu sync.Mutex
	packagers   map[uint32]*ResourcePackager

	nextID uint64
}

// init validates the shared pipeline inputs and merges the shader
// interfaces. It allocates nothing.
func (p *pipelineBase) init(d *Device, kind, name string, target RenderTarget, shaders []*Shader) error {
	if err := checkDevice(d, kind); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return invalidArgument("flint: pipeline name %q is not a valid file name", name)
	}
	if target == nil {
		return invalidArgument("flint: %s %q has no render target", kind, name)
	}
	if target.Device() != d {
		return invalidArgument("flint: render target belongs to a different device")
	}
	if target.IsTerminated() {
		return terminatedError("render target")
	}

	p.device, p.kind = d, kind
	p.name = name
	p.target = target
	p.shaders = shaders
	p.resources = make(ShaderResources)
	p.visibility = make(map[uint32]map[uint32]gputypes.ShaderStages)
	p.packagers = make(map[uint32]*ResourcePackager)
	for _, s := range shaders {
		if s.device != d {
			return invalidArgument("flint: %s shader belongs to a different device", s.desc.Type)
		}
		if err := s.checkAlive(); err != nil {
			return err
		}
		if err := p.mergeResources(s); err != nil {
			return err
		}
	}
	return nil
}

// mergeResources adds the shader's bindings. A binding declared by two
// stages must have the same type in both.
func (p *pipelineBase) mergeResources(s *Shader) error {
	for set, bindings := range s.desc.Resources {
		if p.resources[set] == nil {
			p.resources[set] = make(map[uint32]ShaderResourceType)
			p.visibility[set] = make(map[uint32]gputypes.ShaderStages)
		}
		for binding, typ := range bindings {
			if prev, ok := p.resources[set][binding]; ok && prev != typ {
				return invalidArgument("flint: set %d binding %d is %s in one stage and %s in %s",
					set, binding, prev, typ, s.desc.Type)
			}
			p.resources[set][binding] = typ
			p.visibility[set][binding] |= s.desc.Type.stage()
		}
	}
	return nil
}

// createLayouts builds one bind group layout per set up to the highest
// declared set, leaving gaps empty, and the pipeline layout over them.
func (p *pipelineBase) createLayouts() error {
	d := p.device
	sets := p.resources.Sets()
	count := 0
	if len(sets) > 0 {
		count = int(sets[len(sets)-1]) + 1
	}

	p.groupLayouts = make([]hal.BindGroupLayout, 0, count)
	for set := 0; set < count; set++ {
		entries, err := layoutEntries(p.resources[uint32(set)], p.visibility[uint32(set)])
		if err != nil {
			p.destroyLayouts()
			return err
		}
		gl, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   p.label("set" + strconv.Itoa(set)),
			Entries: entries,
		})
		if err != nil {
			p.destroyLayouts()
			return backendError(err, "flint: create bind group layout for set %d", set)
		}
		p.groupLayouts = append(p.groupLayouts, gl)
	}

	layout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label("layout"),
		BindGroupLayouts: p.groupLayouts,
	})
	if err != nil {
		p.destroyLayouts()
		return backendError(err, "flint: create pipeline layout")
	}
	p.layout = layout
	return nil
}

func layoutEntries(bindings map[uint32]ShaderResourceType, vis map[uint32]gputypes.ShaderStages) ([]gputypes.BindGroupLayoutEntry, error) {
	keys := make([]uint32, 0, len(bindings))
	for b := range bindings {
		keys = append(keys, b)
	}
	slices.Sort(keys)

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(keys))
	for _, b := range keys {
		e := gputypes.BindGroupLayoutEntry{Binding: b, Visibility: vis[b]}
		if e.Visibility == 0 {
			e.Visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute
		}
		switch typ := bindings[b]; typ {
		case ShaderResourceUniformBuffer, ShaderResourceUniformBufferDynamic:
			e.Buffer = &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: typ == ShaderResourceUniformBufferDynamic,
			}
		case ShaderResourceStorageBuffer, ShaderResourceStorageBufferDynamic, ShaderResourceStorageTexelBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeStorage,
				HasDynamicOffset: typ == ShaderResourceStorageBufferDynamic,
			}
		case ShaderResourceUniformTexelBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case ShaderResourceSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case ShaderResourceCombinedImageSampler, ShaderResourceSampledImage, ShaderResourceInputAttachment:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case ShaderResourceStorageImage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		default:
			return nil, backendError(nil, "flint: binding %d: %s resources are not supported", b, typ)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (p *pipelineBase) label(suffix string) string {
	if p.name == "" {
		return "flint." + p.kind + "." + suffix
	}
	return "flint." + p.name + "." + suffix
}

func (p *pipelineBase) destroyLayouts() {
	d := p.device.hal
	if p.layout != nil {
		d.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, gl := range p.groupLayouts {
		d.DestroyBindGroupLayout(gl)
	}
	p.groupLayouts = nil
}

// groupLayout returns the bind group layout for set.
func (p *pipelineBase) groupLayout(set uint32) hal.BindGroupLayout {
	if int(set) < len(p.groupLayouts) {
		return p.groupLayouts[set]
	}
	return nil
}

func (p *pipelineBase) base() *pipelineBase { return p }

// Name returns the cache key.
func (p *pipelineBase) Name() string { return p.name }

// RenderTarget returns the owning render target.
func (p *pipelineBase) RenderTarget() RenderTarget { return p.target }

// Resources returns a copy of the merged resource map.
func (p *pipelineBase) Resources() ShaderResources { return p.resources.Clone() }

// Shaders returns the stages the pipeline was built from.
func (p *pipelineBase) Shaders() []*Shader { return slices.Clone(p.shaders) }

// CachePath returns the cache file path, or "" for unnamed pipelines.
func (p *pipelineBase) CachePath() string {
	if p.name == "" {
		return ""
	}
	cfg := p.device.instance.cfg
	return filepath.Join(cfg.CacheDirectory, p.name+"."+cfg.CacheExtension)
}

// WriteCache creates or truncates the cache file and writes data to it.
// Unnamed pipelines are never cached.
func (p *pipelineBase) WriteCache(data []byte) error {
	path := p.CachePath()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "flint: create cache directory for %q", p.name)
	}
	if old, err := os.Stat(path); err == nil {
		p.device.pipelineBlobs.Delete(blobKey(path, old))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "flint: open cache file %s", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "flint: write cache file %s", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "flint: sync cache file %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "flint: close cache file %s", path)
	}

	if info, err := os.Stat(path); err == nil {
		p.device.pipelineBlobs.Set(blobKey(path, info), bytes.Clone(data))
	}
	return nil
}

// ReadCache returns the cache file contents. A missing file or an unnamed
// pipeline yields (nil, nil). The returned slice belongs to the caller.
func (p *pipelineBase) ReadCache() ([]byte, error) {
	path := p.CachePath()
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "flint: stat cache file %s", path)
	}

	key := blobKey(path, info)
	if data, ok := p.device.pipelineBlobs.Get(key); ok {
		return bytes.Clone(data), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "flint: read cache file %s", path)
	}
	p.device.pipelineBlobs.Set(key, bytes.Clone(data))
	return data, nil
}

// blobKey identifies one version of a cache file.
func blobKey(path string, info os.FileInfo) string {
	return path + "|" + strconv.FormatInt(info.Size(), 10) + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
}

// cacheBlob is the data a pipeline stores in its cache file: the SPIR-V
// words of every stage in little-endian order.
func (p *pipelineBase) cacheBlob() []byte {
	var buf bytes.Buffer
	for _, s := range p.shaders {
		_ = binary.Write(&buf, binary.LittleEndian, s.desc.Code)
	}
	return buf.Bytes()
}

// loadCache compares the cached blob with the current shaders and logs the
// outcome.
func (p *pipelineBase) loadCache() {
	if p.name == "" {
		return
	}
	cached, err := p.ReadCache()
	switch {
	case err != nil:
		Logger().Warn("flint: pipeline cache unreadable", "pipeline", p.name, "err", err)
	case cached == nil:
		Logger().Debug("flint: pipeline cache miss", "pipeline", p.name)
	case bytes.Equal(cached, p.cacheBlob()):
		Logger().Debug("flint: pipeline cache hit", "pipeline", p.name, "bytes", len(cached))
	default:
		Logger().Debug("flint: pipeline cache stale", "pipeline", p.name, "bytes", len(cached))
	}
}

// CreateResourcePackager returns the packager for set.
func (p *pipelineBase) CreateResourcePackager(set uint32) (*ResourcePackager, error) {
	if err := p.checkAlive(); err != nil {
		return nil, err
	}
	p.packagersMu.Lock()
	defer p.packagersMu.Unlock()

	if rp, ok := p.packagers[set]; ok {
		return rp, nil
	}
	rp, err := newPackager(set, p)
	if err != nil {
		return nil, err
	}
	p.packagers[set] = rp
	return rp, nil
}

// allocID returns the next draw data or instance identifier.
func (p *pipelineBase) allocID() uint64 {
	p.nextID++
	return p.nextID
}

// terminate writes the cache file and releases the layouts.
func (p *pipelineBase) terminate() error {
	err := p.WriteCache(p.cacheBlob())
	if err != nil {
		Logger().Warn("flint: pipeline cache write failed", "pipeline", p.name, "err", err)
	}
	p.destroyLayouts()
	return err
}
