package flint

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestAvailableBackends_IncludesNoop(t *testing.T) {
	if got := AvailableBackends(); !slices.Contains(got, "empty") {
		t.Errorf("AvailableBackends() = %v, want it to contain %q", got, "empty")
	}
}

func TestNewInstance(t *testing.T) {
	inst := newTestInstance(t)
	if inst.BackendName() != "empty" {
		t.Errorf("BackendName() = %q", inst.BackendName())
	}

	cfg := testConfig(t)
	cfg.Backend = "no-such-backend"
	if _, err := NewInstance(cfg); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown backend = %v, want ErrInvalidArgument", err)
	}

	cfg = testConfig(t)
	cfg.BufferCount = 0
	if _, err := NewInstance(cfg); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid config = %v, want ErrInvalidArgument", err)
	}
}

func TestInstance_TerminateOrder(t *testing.T) {
	inst, err := NewInstance(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	d, err := inst.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	disp, err := inst.CreateDisplay(0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := inst.Terminate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Terminate with live children = %v", err)
	}
	if err := d.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := disp.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := inst.Terminate(); err != nil {
		t.Fatalf("Terminate = %v", err)
	}
	if _, err := inst.CreateDevice(); !errors.Is(err, ErrTerminated) {
		t.Errorf("CreateDevice after Terminate = %v", err)
	}
	if _, err := inst.CreateDisplay(0, 0); !errors.Is(err, ErrTerminated) {
		t.Errorf("CreateDisplay after Terminate = %v", err)
	}
}

func TestDevice_TerminateRefusesLiveDependents(t *testing.T) {
	inst := newTestInstance(t)
	d, err := inst.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}

	b, err := d.CreateBuffer(64, BufferTypeUniform, BufferMemoryAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.CreateHostSync()
	if err != nil {
		t.Fatal(err)
	}

	err = d.Terminate()
	if !errors.Is(err, ErrDependentsAlive) {
		t.Fatalf("Terminate() = %v, want ErrDependentsAlive", err)
	}
	if d.IsTerminated() {
		t.Fatal("device terminated with live dependents")
	}

	_ = b.Terminate()
	_ = s.Terminate()
	if err := d.Terminate(); err != nil {
		t.Fatalf("Terminate() after releasing dependents = %v", err)
	}
	if _, err := d.CreateBuffer(64, BufferTypeUniform, BufferMemoryAutomatic); !errors.Is(err, ErrTerminated) {
		t.Errorf("CreateBuffer on a terminated device = %v", err)
	}
	if err := d.Terminate(); err != nil {
		t.Errorf("second Terminate = %v", err)
	}
}

func TestDevice_LookupByHandle(t *testing.T) {
	d := newTestDevice(t)
	b := newTestBuffer(t, d, 64, BufferTypeStorage, BufferMemoryAutomatic)

	if b.Handle().IsNil() {
		t.Fatal("buffer has a nil handle")
	}
	got, ok := d.Lookup(b.Handle())
	if !ok || got != DeviceBoundObject(b) {
		t.Errorf("Lookup(%s) = %v, %v", b.Handle(), got, ok)
	}
	if b.Device() != d {
		t.Error("Device() does not return the creating device")
	}

	other := newTestBuffer(t, d, 64, BufferTypeStorage, BufferMemoryAutomatic)
	if other.Handle() == b.Handle() {
		t.Error("two objects share a handle")
	}
	_ = other.Terminate()
	if _, ok := d.Lookup(other.Handle()); ok {
		t.Error("terminated object still registered")
	}
}

func TestDevice_ContextProvider(t *testing.T) {
	d := newTestDevice(t)
	if d.Device() == nil || d.Queue() == nil || d.Adapter() == nil {
		t.Error("gpucontext accessors returned nil")
	}
	if d.Instance() == nil || d.ID().String() == "" {
		t.Error("identity accessors empty")
	}
	if d.Config().CacheExtension != DefaultCacheExtension {
		t.Errorf("Config().CacheExtension = %q", d.Config().CacheExtension)
	}
}
