package flint

import (
	"strconv"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// CommandBufferList owns the command encoders of a render target: one
// primary encoder per frame slot and one secondary encoder per worker and
// frame slot.
//
// A slot is reused only after its previous submission completed; its
// command buffers are then returned to the device.
type CommandBufferList struct {
	deviceObject

	bufferCount uint32
	primaries   []hal.CommandEncoder

	// secondaries[worker][slot]
	secondaries [][]hal.CommandEncoder

	// recorded[slot][worker] is written by the worker that owns it.
	recorded [][]hal.CommandBuffer
	primary  []hal.CommandBuffer
	inFlight [][]hal.CommandBuffer

	// owner is the render target recording into the list. A list serves
	// one target at a time.
	owner atomic.Pointer[renderTarget]
}

// CreateCommandBufferList creates a list with bufferCount frame slots.
func (d *Device) CreateCommandBufferList(bufferCount uint32) (*CommandBufferList, error) {
	if err := checkDevice(d, "command buffer list"); err != nil {
		return nil, err
	}
	if bufferCount == 0 {
		return nil, invalidArgument("flint: command buffer list needs at least one frame slot")
	}
	l := &CommandBufferList{
		deviceObject: deviceObject{device: d, kind: "command buffer list"},
		bufferCount:  bufferCount,
		primaries:    make([]hal.CommandEncoder, 0, bufferCount),
		recorded:     make([][]hal.CommandBuffer, bufferCount),
		primary:      make([]hal.CommandBuffer, bufferCount),
		inFlight:     make([][]hal.CommandBuffer, bufferCount),
	}
	for slot := uint32(0); slot < bufferCount; slot++ {
		enc, err := l.newEncoder("primary", slot)
		if err != nil {
			l.destroyEncoders()
			return nil, err
		}
		l.primaries = append(l.primaries, enc)
	}
	d.track(&l.deviceObject, l)
	return l, nil
}

func (l *CommandBufferList) newEncoder(role string, slot uint32) (hal.CommandEncoder, error) {
	label := "flint." + role + "." + strconv.FormatUint(uint64(slot), 10)
	enc, err := l.device.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, backendError(err, "flint: create %s command encoder", role)
	}
	return enc, nil
}

// BufferCount returns the number of frame slots.
func (l *CommandBufferList) BufferCount() uint32 { return l.bufferCount }

// claim makes rt the owner of the list. It fails when another target owns it.
func (l *CommandBufferList) claim(rt *renderTarget) bool {
	return l.owner.CompareAndSwap(nil, rt)
}

// disown releases the list if rt owns it.
func (l *CommandBufferList) disown(rt *renderTarget) {
	l.owner.CompareAndSwap(rt, nil)
}

// SecondaryCount returns the number of worker encoders per slot.
func (l *CommandBufferList) SecondaryCount() int { return len(l.secondaries) }

// reserveSecondaries makes sure n workers have encoders for every slot.
func (l *CommandBufferList) reserveSecondaries(n int) error {
	for w := len(l.secondaries); w < n; w++ {
		encs := make([]hal.CommandEncoder, 0, l.bufferCount)
		for slot := uint32(0); slot < l.bufferCount; slot++ {
			enc, err := l.newEncoder("secondary"+strconv.Itoa(w), slot)
			if err != nil {
				for _, e := range encs {
					e.Destroy()
				}
				return err
			}
			encs = append(encs, enc)
		}
		l.secondaries = append(l.secondaries, encs)
	}
	for slot := range l.recorded {
		if len(l.recorded[slot]) < n {
			l.recorded[slot] = append(l.recorded[slot], make([]hal.CommandBuffer, n-len(l.recorded[slot]))...)
		}
	}
	return nil
}

// begin recycles the command buffers of slot and starts the primary encoder.
// The previous submission of slot must have completed.
func (l *CommandBufferList) begin(slot uint32, label string) (hal.CommandEncoder, error) {
	if err := l.checkAlive(); err != nil {
		return nil, err
	}
	l.recycle(slot)
	enc := l.primaries[slot]
	if err := enc.BeginEncoding(label); err != nil {
		return nil, backendError(err, "flint: begin primary encoding")
	}
	return enc, nil
}

func (l *CommandBufferList) recycle(slot uint32) {
	for _, cb := range l.inFlight[slot] {
		l.device.hal.FreeCommandBuffer(cb)
	}
	l.inFlight[slot] = l.inFlight[slot][:0]
}

// endPrimary finishes the primary encoder of slot.
func (l *CommandBufferList) endPrimary(slot uint32) error {
	cb, err := l.primaries[slot].EndEncoding()
	if err != nil {
		return backendError(err, "flint: end primary encoding")
	}
	l.primary[slot] = cb
	return nil
}

// secondary returns the encoder of worker for slot. Only that worker may use it.
func (l *CommandBufferList) secondary(worker int, slot uint32) hal.CommandEncoder {
	return l.secondaries[worker][slot]
}

// finishSecondary stores the buffer recorded by worker for slot. A nil cb
// means the worker recorded nothing.
func (l *CommandBufferList) finishSecondary(worker int, slot uint32, cb hal.CommandBuffer) {
	l.recorded[slot][worker] = cb
}

// submit sends the primary buffer of slot followed by the worker buffers in
// worker order and returns the submission index.
func (l *CommandBufferList) submit(slot uint32) (uint64, error) {
	buffers := make([]hal.CommandBuffer, 0, 1+len(l.recorded[slot]))
	if cb := l.primary[slot]; cb != nil {
		buffers = append(buffers, cb)
	}
	for w, cb := range l.recorded[slot] {
		if cb != nil {
			buffers = append(buffers, cb)
			l.recorded[slot][w] = nil
		}
	}
	l.primary[slot] = nil
	l.inFlight[slot] = append(l.inFlight[slot], buffers...)
	if len(buffers) == 0 {
		return l.device.completed(), nil
	}
	return l.device.submit(buffers)
}

// discard abandons a partially recorded slot.
func (l *CommandBufferList) discard(slot uint32) {
	l.primaries[slot].DiscardEncoding()
	if cb := l.primary[slot]; cb != nil {
		l.device.hal.FreeCommandBuffer(cb)
		l.primary[slot] = nil
	}
	l.dropSecondaries(slot)
}

// dropSecondaries frees the worker buffers of slot that were recorded but
// never submitted.
func (l *CommandBufferList) dropSecondaries(slot uint32) {
	for w, cb := range l.recorded[slot] {
		if cb != nil {
			l.device.hal.FreeCommandBuffer(cb)
			l.recorded[slot][w] = nil
		}
	}
}

func (l *CommandBufferList) destroyEncoders() {
	for _, enc := range l.primaries {
		enc.Destroy()
	}
	for _, encs := range l.secondaries {
		for _, enc := range encs {
			enc.Destroy()
		}
	}
	l.primaries, l.secondaries = nil, nil
}

// Terminate waits for the device to go idle and releases all encoders and
// command buffers.
func (l *CommandBufferList) Terminate() error {
	if !l.beginTerminate() {
		return nil
	}
	err := l.device.WaitIdle()
	for slot := range l.inFlight {
		l.recycle(uint32(slot))
		l.dropSecondaries(uint32(slot))
	}
	l.destroyEncoders()
	return err
}
