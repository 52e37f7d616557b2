package flint

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/flint/internal/parallel"
)

// RenderTarget is a set of frame attachments plus the draw instance maps
// that are recorded into them every frame.
//
// Draw instances are (geometry store, graphics pipeline) pairs. They are
// spread over one map per recording thread: a pair joins the map that
// already holds its store, or the next map in round-robin order. Each
// worker goroutine records only its own map.
type RenderTarget interface {
	DeviceBoundObject

	Extent() Extent2D
	BufferCount() uint32
	ThreadCount() int
	FrameIndex() uint32
	ColorFormat() PixelFormat
	DepthFormat() PixelFormat

	SubmitPipeline(store *GeometryStore, pipeline *GraphicsPipeline) error
	RemovePipeline(store *GeometryStore, pipeline *GraphicsPipeline)
	SubmitComputePipeline(pipeline *ComputePipeline) error
	RemoveComputePipeline(pipeline *ComputePipeline)

	DrawInstanceMap(i int) map[*GeometryStore][]*GraphicsPipeline
	DrawOrder(i int) []*GeometryStore
	IsAltered() bool

	InitiateThreads() error
	TerminateThreads() error
	AcquireAllThreads()
	ReleaseAllThreads()

	SubmitFrame(ctx context.Context) error
	Stats() FrameStats

	base() *renderTarget
}

// FrameStats summarizes the frames a render target submitted.
type FrameStats struct {
	Frames     uint64
	DrawCalls  int
	Dispatches int
	LastFrame  time.Duration
}

// attachments is implemented by the concrete target kinds.
type attachments interface {
	// acquire returns the color view frame slot renders into.
	acquire(slot uint32) (hal.TextureView, error)
	// present finishes slot after its commands were submitted.
	present(slot uint32) error
	// abandon gives up slot after a failed recording.
	abandon(slot uint32)
}

// frame is what workers need while recording. It is written before the
// workers are released and read only while they run.
type frame struct {
	slot  uint32
	color hal.TextureView
	depth hal.TextureView
}

type renderTarget struct {
	deviceObject

	attach attachments
	opts   renderTargetOptions

	extent      Extent2D
	bufferCount uint32
	threads     int
	cmds        *CommandBufferList
	syncs       []*HostSync
	depth       *Image

	colorFormat gputypes.TextureFormat
	depthFormat PixelFormat
	samples     uint32

	// mu guards the maps and the compute list. SubmitFrame holds it for the
	// whole frame, so workers read the maps under the caller's lock.
	mu       sync.Mutex
	maps     []map[*GeometryStore][]*GraphicsPipeline
	orders   [][]*GeometryStore
	nextMap  int
	altered  bool
	computes []*ComputePipeline

	workers *parallel.Workers
	current frame
	errs    []error
	draws   []int

	frameIndex uint32
	stats      FrameStats

	// onRecord, when set, is called by the recording goroutine for every
	// pair it visits.
	onRecord func(worker int, store *GeometryStore, pipeline *GraphicsPipeline)
}

// init validates the arguments and allocates what every target kind needs.
// Nothing is allocated when validation fails.
func (rt *renderTarget) init(d *Device, kind string, extent Extent2D, bufferCount uint32, cmds *CommandBufferList, threads int, opts []RenderTargetOption) error {
	if err := checkDevice(d, kind); err != nil {
		return err
	}
	if extent.IsZero() {
		return invalidArgument("flint: %s extent %s has a zero dimension", kind, extent)
	}
	if bufferCount == 0 {
		return invalidArgument("flint: %s needs at least one frame buffer", kind)
	}
	if cmds == nil {
		return invalidArgument("flint: %s command buffer list is nil", kind)
	}
	if err := cmds.checkAlive(); err != nil {
		return err
	}
	if cmds.device != d {
		return invalidArgument("flint: command buffer list belongs to a different device")
	}
	if cmds.BufferCount() != bufferCount {
		return invalidArgument("flint: command buffer list has %d slots, target has %d buffers", cmds.BufferCount(), bufferCount)
	}
	if threads < 0 {
		return invalidArgument("flint: negative thread count %d", threads)
	}
	o := defaultRenderTargetOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return err
	}
	if !cmds.claim(rt) {
		return invalidArgument("flint: command buffer list is already used by another render target")
	}

	nmaps := max(threads, 1)
	rt.deviceObject = deviceObject{device: d, kind: kind}
	rt.opts = o
	rt.extent = extent
	rt.bufferCount = bufferCount
	rt.threads = threads
	rt.cmds = cmds
	rt.depthFormat = o.depthFormat
	rt.samples = 1
	rt.maps = make([]map[*GeometryStore][]*GraphicsPipeline, nmaps)
	rt.orders = make([][]*GeometryStore, nmaps)
	for i := range rt.maps {
		rt.maps[i] = make(map[*GeometryStore][]*GraphicsPipeline)
	}
	rt.errs = make([]error, nmaps)
	rt.draws = make([]int, nmaps)

	if err := cmds.reserveSecondaries(nmaps); err != nil {
		rt.release()
		return err
	}
	for range bufferCount {
		s, err := d.CreateHostSync()
		if err != nil {
			rt.release()
			return err
		}
		rt.syncs = append(rt.syncs, s)
	}
	if err := rt.createDepth(); err != nil {
		rt.release()
		return err
	}
	return nil
}

func (rt *renderTarget) createDepth() error {
	if rt.depthFormat == PixelFormatUndefined {
		return nil
	}
	img, err := rt.device.CreateImage(ImageType2D, ImageUsageDepth|ImageUsageGraphics,
		Extent3D{Width: rt.extent.Width, Height: rt.extent.Height, Depth: 1}, rt.depthFormat, 1, 1)
	if err != nil {
		return err
	}
	rt.depth = img
	return nil
}

func (rt *renderTarget) base() *renderTarget { return rt }

// Extent returns the size of the attachments.
func (rt *renderTarget) Extent() Extent2D { return rt.extent }

// BufferCount returns the number of frames in flight.
func (rt *renderTarget) BufferCount() uint32 { return rt.bufferCount }

// ThreadCount returns the number of recording workers. Zero means frames
// are recorded on the goroutine calling SubmitFrame.
func (rt *renderTarget) ThreadCount() int { return rt.threads }

// FrameIndex returns the slot the next frame uses.
func (rt *renderTarget) FrameIndex() uint32 { return rt.frameIndex }

// ColorFormat returns the color attachment format.
func (rt *renderTarget) ColorFormat() PixelFormat { return PixelFormatFromTexture(rt.colorFormat) }

// DepthFormat returns the depth attachment format, or PixelFormatUndefined.
func (rt *renderTarget) DepthFormat() PixelFormat { return rt.depthFormat }

// DepthImage returns the depth attachment, or nil.
func (rt *renderTarget) DepthImage() *Image { return rt.depth }

// CommandBufferList returns the list the target records into.
func (rt *renderTarget) CommandBufferList() *CommandBufferList { return rt.cmds }

// Stats returns counters of submitted frames.
func (rt *renderTarget) Stats() FrameStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.stats
}

// SubmitPipeline adds the draw instance (store, pipeline). A store already
// held by a map gets the pipeline appended to its list there; a new store
// goes to the next map in round-robin order. Submitting a pair twice is a
// no-op.
func (rt *renderTarget) SubmitPipeline(store *GeometryStore, pipeline *GraphicsPipeline) error {
	if store == nil || pipeline == nil {
		return invalidArgument("flint: draw instance needs a geometry store and a pipeline")
	}
	if err := rt.checkAlive(); err != nil {
		return err
	}
	if err := store.checkAlive(); err != nil {
		return err
	}
	if err := pipeline.checkAlive(); err != nil {
		return err
	}
	if pipeline.target.base() != rt {
		return invalidArgument("flint: pipeline %q was created for another render target", pipeline.name)
	}
	if store.device != rt.device {
		return invalidArgument("flint: geometry store belongs to a different device")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.altered = true
	for i, m := range rt.maps {
		list, ok := m[store]
		if !ok {
			continue
		}
		if !slices.Contains(list, pipeline) {
			rt.maps[i][store] = append(list, pipeline)
		}
		return nil
	}
	n := rt.nextMap
	rt.maps[n][store] = []*GraphicsPipeline{pipeline}
	rt.orders[n] = append(rt.orders[n], store)
	rt.nextMap = (n + 1) % len(rt.maps)
	return nil
}

// RemovePipeline removes the draw instance (store, pipeline). A store whose
// list becomes empty leaves its map. Removing an unknown pair is a no-op.
func (rt *renderTarget) RemovePipeline(store *GeometryStore, pipeline *GraphicsPipeline) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.altered = true
	for i := range rt.maps {
		if rt.removeFrom(i, store, pipeline) {
			return
		}
	}
}

func (rt *renderTarget) removeFrom(i int, store *GeometryStore, pipeline *GraphicsPipeline) bool {
	list, ok := rt.maps[i][store]
	if !ok {
		return false
	}
	j := slices.Index(list, pipeline)
	if j < 0 {
		return false
	}
	list = slices.Delete(list, j, j+1)
	if len(list) > 0 {
		rt.maps[i][store] = list
		return true
	}
	delete(rt.maps[i], store)
	if k := slices.Index(rt.orders[i], store); k >= 0 {
		rt.orders[i] = slices.Delete(rt.orders[i], k, k+1)
	}
	return true
}

// forgetPipeline drops every draw instance of pipeline.
func (rt *renderTarget) forgetPipeline(p *GraphicsPipeline) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i := range rt.maps {
		for _, store := range slices.Clone(rt.orders[i]) {
			if rt.removeFrom(i, store, p) {
				rt.altered = true
			}
		}
	}
}

// SubmitComputePipeline adds pipeline to the dispatches recorded at the
// start of every frame. Submitting it twice is a no-op.
func (rt *renderTarget) SubmitComputePipeline(pipeline *ComputePipeline) error {
	if pipeline == nil {
		return invalidArgument("flint: compute pipeline is nil")
	}
	if err := rt.checkAlive(); err != nil {
		return err
	}
	if err := pipeline.checkAlive(); err != nil {
		return err
	}
	if pipeline.target.base() != rt {
		return invalidArgument("flint: compute pipeline %q was created for another render target", pipeline.name)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !slices.Contains(rt.computes, pipeline) {
		rt.computes = append(rt.computes, pipeline)
		rt.altered = true
	}
	return nil
}

// RemoveComputePipeline removes pipeline from the frame's dispatches.
func (rt *renderTarget) RemoveComputePipeline(pipeline *ComputePipeline) {
	rt.forgetCompute(pipeline)
}

func (rt *renderTarget) forgetCompute(p *ComputePipeline) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i := slices.Index(rt.computes, p); i >= 0 {
		rt.computes = slices.Delete(rt.computes, i, i+1)
		rt.altered = true
	}
}

// DrawInstanceMap returns a copy of map i. It returns nil when i is out of
// range.
func (rt *renderTarget) DrawInstanceMap(i int) map[*GeometryStore][]*GraphicsPipeline {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i < 0 || i >= len(rt.maps) {
		return nil
	}
	m := make(map[*GeometryStore][]*GraphicsPipeline, len(rt.maps[i]))
	for k, v := range rt.maps[i] {
		m[k] = slices.Clone(v)
	}
	return m
}

// DrawOrder returns the stores of map i in recording order.
func (rt *renderTarget) DrawOrder(i int) []*GeometryStore {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i < 0 || i >= len(rt.orders) {
		return nil
	}
	return slices.Clone(rt.orders[i])
}

// IsAltered reports whether draw instances changed since the last frame.
func (rt *renderTarget) IsAltered() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.altered
}

// InitiateThreads starts the recording workers and waits until every one
// is ready. It is a no-op when they already run or the thread count is 0.
func (rt *renderTarget) InitiateThreads() error {
	if err := rt.checkAlive(); err != nil {
		return err
	}
	if rt.workers != nil || rt.threads == 0 {
		return nil
	}
	w, err := parallel.StartWorkers(rt.threads, parallel.Task{Record: rt.recordWorker})
	if err != nil {
		return errors.Wrap(err, "flint: start recording workers")
	}
	rt.workers = w
	Logger().Debug("flint: recording workers started", "target", rt.handle.String(), "threads", rt.threads)
	return nil
}

// TerminateThreads stops the workers after their current round and joins
// them.
func (rt *renderTarget) TerminateThreads() error {
	if rt.workers == nil {
		return nil
	}
	err := rt.workers.Close()
	rt.workers = nil
	return err
}

// ReleaseAllThreads starts one recording round on every worker. Draw
// instances must not change until AcquireAllThreads returns. The round
// records against the attachments of the last submitted frame.
func (rt *renderTarget) ReleaseAllThreads() {
	if rt.workers != nil {
		rt.workers.ReleaseAll()
	}
}

// AcquireAllThreads blocks until every worker finished its round. Buffers
// recorded by a round started with ReleaseAllThreads are not submitted; they
// are freed here.
func (rt *renderTarget) AcquireAllThreads() {
	if rt.workers != nil {
		rt.workers.AcquireAll()
		rt.cmds.dropSecondaries(rt.current.slot)
		clear(rt.errs)
	}
}

// SubmitFrame records and submits the next frame: dispatches and the clear
// pass go into the primary command buffer, each map into its worker's
// buffer. The frame slot is reused only after its previous submission
// completed.
func (rt *renderTarget) SubmitFrame(ctx context.Context) error {
	if err := rt.checkAlive(); err != nil {
		return err
	}
	if rt.threads > 0 && rt.workers == nil {
		if err := rt.InitiateThreads(); err != nil {
			return err
		}
	}
	start := time.Now()
	slot := rt.frameIndex

	if err := rt.syncs[slot].Wait(ctx); err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.prepare(); err != nil {
		return err
	}
	color, err := rt.attach.acquire(slot)
	if err != nil {
		return err
	}
	rt.current = frame{slot: slot, color: color}
	if rt.depth != nil {
		rt.current.depth = rt.depth.view
	}

	dispatches, err := rt.recordPrimary(slot)
	if err != nil {
		rt.cmds.discard(slot)
		rt.attach.abandon(slot)
		return err
	}

	// Workers read the maps under mu held here, so the round must finish
	// before returning.
	if rt.workers != nil {
		rt.workers.ReleaseAll()
		rt.workers.AcquireAll()
	} else {
		rt.recordWorker(0)
	}

	draws := 0
	for i, werr := range rt.errs {
		if werr != nil {
			rt.cmds.discard(slot)
			rt.attach.abandon(slot)
			clear(rt.errs)
			return werr
		}
		draws += rt.draws[i]
	}

	idx, err := rt.cmds.submit(slot)
	if err != nil {
		return err
	}
	rt.syncs[slot].Track(idx)
	if err := rt.attach.present(slot); err != nil {
		return err
	}

	rt.altered = false
	rt.frameIndex = (slot + 1) % rt.bufferCount
	rt.stats.Frames++
	rt.stats.DrawCalls = draws
	rt.stats.Dispatches = dispatches
	rt.stats.LastFrame = time.Since(start)
	return nil
}

// prepare rebuilds the bind groups of dirty packages before any worker
// reads them.
func (rt *renderTarget) prepare() error {
	prep := func(pkg *ResourcePackage) error { return pkg.PrepareIfNecessary() }
	for _, p := range rt.computes {
		if err := p.packages(prep); err != nil {
			return err
		}
	}
	for _, m := range rt.maps {
		for _, list := range m {
			for _, p := range list {
				if err := p.packages(prep); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// recordPrimary records the dispatches and the clear pass of slot.
func (rt *renderTarget) recordPrimary(slot uint32) (int, error) {
	enc, err := rt.cmds.begin(slot, rt.opts.label+".primary")
	if err != nil {
		return 0, err
	}
	dispatches := 0
	if len(rt.computes) > 0 {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: rt.opts.label + ".compute"})
		for _, p := range rt.computes {
			dispatches += p.record(pass)
		}
		pass.End()
	}
	pass := enc.BeginRenderPass(rt.passDescriptor(gputypes.LoadOpClear, "clear"))
	pass.End()
	if err := rt.cmds.endPrimary(slot); err != nil {
		return 0, err
	}
	return dispatches, nil
}

func (rt *renderTarget) passDescriptor(load gputypes.LoadOp, role string) *hal.RenderPassDescriptor {
	desc := &hal.RenderPassDescriptor{
		Label: rt.opts.label + "." + role,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       rt.current.color,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: rt.opts.clearColor,
		}},
	}
	if rt.current.depth != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            rt.current.depth,
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: rt.opts.clearDepth,
		}
	}
	return desc
}

// recordWorker records map id into the worker's command buffer for the
// current frame. It runs on the worker goroutine.
func (rt *renderTarget) recordWorker(id int) {
	slot := rt.current.slot
	order := rt.orders[id]
	rt.draws[id] = 0
	if len(order) == 0 {
		rt.cmds.finishSecondary(id, slot, nil)
		return
	}

	enc := rt.cmds.secondary(id, slot)
	label := rt.opts.label + ".worker" + strconv.Itoa(id)
	if err := enc.BeginEncoding(label); err != nil {
		rt.errs[id] = backendError(err, "flint: begin worker %d encoding", id)
		return
	}
	pass := enc.BeginRenderPass(rt.passDescriptor(gputypes.LoadOpLoad, "worker"+strconv.Itoa(id)))
	draws := 0
	for _, store := range order {
		for _, p := range rt.maps[id][store] {
			draws += p.record(pass, store)
			if rt.onRecord != nil {
				rt.onRecord(id, store, p)
			}
		}
	}
	pass.End()

	cb, err := enc.EndEncoding()
	if err != nil {
		rt.errs[id] = backendError(err, "flint: end worker %d encoding", id)
		return
	}
	rt.cmds.finishSecondary(id, slot, cb)
	rt.draws[id] = draws
}

// release frees what init allocated. Safe on a partially built target.
func (rt *renderTarget) release() {
	if rt.cmds != nil {
		rt.cmds.disown(rt)
	}
	for _, s := range rt.syncs {
		_ = s.Terminate()
	}
	rt.syncs = nil
	if rt.depth != nil {
		_ = rt.depth.Terminate()
		rt.depth = nil
	}
}

// terminate stops the workers and waits for in-flight frames before the
// caller releases its attachments.
func (rt *renderTarget) terminate() error {
	err := rt.TerminateThreads()
	for _, s := range rt.syncs {
		if werr := s.Wait(context.Background()); werr != nil && err == nil {
			err = werr
		}
	}
	rt.release()
	return err
}
