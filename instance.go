package flint

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Instance is the entry point of the engine: it owns the HAL instance of the
// selected backend and creates devices and displays from it.
type Instance struct {
	cfg         Config
	backendName string
	backend     hal.Backend
	hal         hal.Instance

	devices    atomic.Int32
	displays   atomic.Int32
	terminated atomic.Bool
}

// backendName returns the registry name of a HAL backend variant.
func backendName(v gputypes.Backend) string {
	return strings.ToLower(v.String())
}

// backendRegistry collects the HAL backends linked into the binary.
// Backends register themselves with hal.RegisterBackend from init, so the
// caller decides which ones exist through its imports.
func backendRegistry(priority []string) *gpucontext.Registry[hal.Backend] {
	reg := gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(priority...))
	for _, v := range hal.AvailableBackends() {
		b, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		reg.Register(backendName(v), func() hal.Backend { return b })
	}
	return reg
}

// AvailableBackends lists the names of the registered HAL backends, sorted.
func AvailableBackends() []string {
	names := backendRegistry(nil).Available()
	sort.Strings(names)
	return names
}

// NewInstance validates cfg, selects a backend and creates its HAL instance.
func NewInstance(cfg Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := backendRegistry(cfg.BackendPriority)
	if reg.Count() == 0 {
		return nil, backendError(nil, "flint: no HAL backend registered; import a backend package such as github.com/gogpu/wgpu/hal/allbackends")
	}

	var (
		name    string
		backend hal.Backend
	)
	if cfg.Backend != "" {
		if !reg.Has(cfg.Backend) {
			avail := reg.Available()
			sort.Strings(avail)
			return nil, invalidArgument("flint: backend %q is not registered (available: %s)", cfg.Backend, strings.Join(avail, ", "))
		}
		name, backend = cfg.Backend, reg.Get(cfg.Backend)
	} else {
		name, backend = reg.BestName(), reg.Best()
	}

	desc := &hal.InstanceDescriptor{Backends: gputypes.Backends(1) << backend.Variant()}
	inst, err := backend.CreateInstance(desc)
	if err != nil {
		return nil, backendError(err, "flint: create %s instance", name)
	}

	Logger().Info("flint: instance created", "backend", name)

	return &Instance{
		cfg:         cfg,
		backendName: name,
		backend:     backend,
		hal:         inst,
	}, nil
}

// Config returns the configuration the instance was created with.
func (i *Instance) Config() Config { return i.cfg }

// BackendName returns the name of the selected backend.
func (i *Instance) BackendName() string { return i.backendName }

// IsTerminated reports whether Terminate has been called.
func (i *Instance) IsTerminated() bool { return i.terminated.Load() }

// CreateDisplay wraps a native window in a presentation surface.
// The handles are platform specific (for example an X11 Display* and
// Window). Headless backends accept zero handles.
func (i *Instance) CreateDisplay(displayHandle, windowHandle uintptr) (*Display, error) {
	if i.terminated.Load() {
		return nil, terminatedError("instance")
	}
	surface, err := i.hal.CreateSurface(displayHandle, windowHandle)
	if err != nil {
		return nil, backendError(err, "flint: create surface")
	}
	i.displays.Add(1)
	return &Display{instance: i, surface: surface}, nil
}

// CreateDevice opens a logical device on the first adapter the backend
// exposes. When display is non-nil, only adapters able to present to it are
// considered.
func (i *Instance) CreateDevice(display ...*Display) (*Device, error) {
	if i.terminated.Load() {
		return nil, terminatedError("instance")
	}

	var surface hal.Surface
	var disp *Display
	if len(display) > 0 && display[0] != nil {
		disp = display[0]
		surface = disp.surface
	}

	adapters := i.hal.EnumerateAdapters(surface)
	if len(adapters) == 0 {
		return nil, backendError(nil, "flint: backend %s exposes no adapter", i.backendName)
	}
	exposed := pickAdapter(adapters)

	open, err := exposed.Adapter.Open(0, i.cfg.Limits)
	if err != nil {
		return nil, backendError(err, "flint: open device on %q", exposed.Info.Name)
	}

	d := newDevice(i, exposed, open, disp)
	i.devices.Add(1)

	Logger().Info("flint: device created",
		"adapter", exposed.Info.Name,
		"vendor", exposed.Info.Vendor,
		"type", exposed.Info.DeviceType.String())
	return d, nil
}

// pickAdapter prefers a discrete GPU, then an integrated one, then
// whatever comes first.
func pickAdapter(adapters []hal.ExposedAdapter) hal.ExposedAdapter {
	rank := func(t gputypes.DeviceType) int {
		switch t {
		case gputypes.DeviceTypeDiscreteGPU:
			return 0
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		default:
			return 2
		}
	}
	best := adapters[0]
	for _, a := range adapters[1:] {
		if rank(a.Info.DeviceType) < rank(best.Info.DeviceType) {
			best = a
		}
	}
	return best
}

// Terminate destroys the HAL instance. Devices and displays created from
// the instance must be terminated first.
func (i *Instance) Terminate() error {
	if i.devices.Load() > 0 || i.displays.Load() > 0 {
		return invalidArgument("flint: instance has %d devices and %d displays alive",
			i.devices.Load(), i.displays.Load())
	}
	if !i.terminated.CompareAndSwap(false, true) {
		return nil
	}
	i.hal.Destroy()
	Logger().Info("flint: instance terminated", "backend", i.backendName)
	return nil
}

// Display is a presentation surface bound to a native window.
type Display struct {
	instance   *Instance
	surface    hal.Surface
	terminated atomic.Bool
}

// Instance returns the instance that created the display.
func (d *Display) Instance() *Instance { return d.instance }

// IsTerminated reports whether Terminate has been called.
func (d *Display) IsTerminated() bool { return d.terminated.Load() }

// Terminate destroys the surface. Screen bound render targets using the
// display must be terminated first.
func (d *Display) Terminate() error {
	if !d.terminated.CompareAndSwap(false, true) {
		return nil
	}
	d.surface.Destroy()
	d.instance.displays.Add(-1)
	return nil
}
