// Package flint is the core of the Flint rendering engine.
//
// # Overview
//
// flint ties a logical GPU device to the objects that draw with it: render
// targets, graphics and compute pipelines, resource packagers that bind
// buffers and images to pipeline binding slots, and the command buffers that
// carry each frame to the GPU. GPU access goes through the gogpu/wgpu HAL, so
// the same code runs on Vulkan, Metal, DX12, GL or the headless noop backend.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/flint"
//	    _ "github.com/gogpu/wgpu/hal/noop" // or hal/allbackends
//	)
//
//	inst, err := flint.NewInstance(flint.DefaultConfig())
//	dev, err := inst.CreateDevice()
//	cmds, err := dev.CreateCommandBufferList(2)
//	rt, err := dev.CreateOffScreenRenderTarget(cmds, flint.Extent2D{Width: 800, Height: 600}, 2, 4)
//
//	// Per frame:
//	err = rt.SubmitFrame(ctx)
//
// # Object Graph
//
// Instance -> Device -> RenderTarget -> Pipeline -> ResourcePackager ->
// ResourcePackage. Every object below the device is device-bound: it is
// created through a Device factory method, registered in the device's
// resource table under an opaque [Handle], and destroyed with an explicit,
// idempotent Terminate. A device refuses to terminate while any of its
// objects are still alive.
//
// # Threading
//
// A render target with N threads owns N recording workers. Draw instances,
// keyed by (GeometryStore, GraphicsPipeline), are distributed round-robin
// across the workers' draw instance maps and stay with their worker until
// removed. Each frame the submitting goroutine releases every worker, waits
// for all of them, then submits the primary command buffer followed by the
// workers' secondary command buffers. SubmitPipeline and RemovePipeline must
// be called from the goroutine that calls SubmitFrame.
//
// # Errors
//
// Precondition violations are reported with errors matching
// [ErrInvalidArgument]; HAL failures match [ErrBackend]. Use errors.Is.
package flint

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
