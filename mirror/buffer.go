// Package mirror keeps external copies of a dense octree's byte array in step with in place edits.
// The dense array is the source of truth; a copy only ever receives the changed records of each
// edit, in the order they were produced.
package mirror

import (
	"github.com/pkg/errors"

	"go.viam.com/svo/octree"
)

// A Buffer is a byte copy of a dense array, standing in for a device side buffer.
type Buffer struct {
	data []byte
}

// NewBuffer returns a buffer initialized with a copy of src.
func NewBuffer(src []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), src...)}
}

// Apply writes every changed record into the buffer and returns how many were written. Records
// with Changed false are placeholders and are skipped. A record addressing a slot past the end of
// the buffer aborts the batch; records before it stay applied.
func (b *Buffer) Apply(records []octree.MutationRecord) (int, error) {
	written := 0
	for _, r := range records {
		if !r.Changed {
			continue
		}
		if int(r.Slot) >= len(b.data) {
			return written, errors.Errorf("record slot %d outside buffer of %d bytes", r.Slot, len(b.data))
		}
		b.data[r.Slot] = r.Value
		written++
	}
	return written, nil
}

// Bytes returns the buffer contents. Callers must not modify them.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}
