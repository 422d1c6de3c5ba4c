package stego

import (
	"sync"

	"github.com/stegochat/stegochat/internal/transport"
)

// Batch is the staged decrypt input: image artifacts accumulated across
// multiple user selections, in selection order. Order is the data the
// decoder reads, so it is preserved exactly. The batch is only ever
// cleared explicitly; a decode, successful or not, leaves it intact so
// the user can retry or re-decode under another key.
type Batch struct {
	mu    sync.Mutex
	files []transport.ImageFile
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends one image to the batch.
func (b *Batch) Add(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = append(b.files, transport.ImageFile{Name: name, Data: data})
}

// Files returns a snapshot of the staged images in accumulation order.
func (b *Batch) Files() []transport.ImageFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]transport.ImageFile, len(b.files))
	copy(out, b.files)
	return out
}

// Len returns the number of staged images.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

// Clear discards all staged images.
func (b *Batch) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = nil
}
