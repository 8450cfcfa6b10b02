package ethercat

import "sync"

// ProcessImage owns the two byte buffers exchanged with the wire each
// cycle: the input image (filled by the transport's LRD) and the output
// image (drained by the transport's LWR). Its lifetime is tied to the
// configured Master; it is reset on (re)configuration (spec.md §3).
type ProcessImage struct {
	mu     sync.Mutex
	input  []byte
	output []byte
}

func newProcessImage(inputBytes, outputBytes int) *ProcessImage {
	return &ProcessImage{
		input:  make([]byte, inputBytes),
		output: make([]byte, outputBytes),
	}
}

func (p *ProcessImage) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.input {
		p.input[i] = 0
	}
	for i := range p.output {
		p.output[i] = 0
	}
}

// outputSnapshot returns a copy of the current output image, suitable for
// handing to Transport.Exchange without holding the image lock across the
// call.
func (p *ProcessImage) outputSnapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.output...)
}

// swapInput replaces the input image with data, which must be the same
// length as the image's configured input size.
func (p *ProcessImage) swapInput(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.input, data)
}

func (p *ProcessImage) readInputBit(byteOffset int, bitOffset uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input[byteOffset]&(1<<bitOffset) != 0
}

func (p *ProcessImage) writeOutputBit(byteOffset int, bitOffset uint8, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value {
		p.output[byteOffset] |= 1 << bitOffset
	} else {
		p.output[byteOffset] &^= 1 << bitOffset
	}
}

// InputBytes returns a copy of the current input image, for inspection by
// the application or by diagnostics.
func (p *ProcessImage) InputBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.input...)
}

// OutputBytes returns a copy of the current output image.
func (p *ProcessImage) OutputBytes() []byte {
	return p.outputSnapshot()
}
