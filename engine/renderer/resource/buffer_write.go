package resource

import (
	"errors"
	"fmt"
)

// BufferWrite describes a single buffer upload at a given byte offset.
type BufferWrite struct {
	Buffer Buffer
	Offset uint64
	Data   []byte
}

func (f *factory) WriteBuffers(writes ...BufferWrite) error {
	var errs []error
	for i, w := range writes {
		if w.Buffer == nil {
			errs = append(errs, fmt.Errorf("write %d: nil buffer", i))
			continue
		}
		if err := w.Buffer.Write(w.Offset, w.Data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
