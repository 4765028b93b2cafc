package ir

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rw0x0/swanky/utils"
)

// Writer streams segments to an IR file. It writes to a temporary file in
// the destination directory and publishes it with an atomic rename on Close,
// so a crashed or aborted compilation never leaves a valid-looking artifact
// behind. Peak memory is one segment plus the bufio window.
type Writer struct {
	path string
	tmp  *os.File
	bw   *bufio.Writer
	segs uint64
	done bool
}

// NewWriter creates the temporary output file and writes the header. The
// header's WireBound is patched in place by Close.
func NewWriter(path string, hdr *Header) (*Writer, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary output: %w", err)
	}
	w := &Writer{
		path: path,
		tmp:  tmp,
		bw:   bufio.NewWriterSize(tmp, 1<<20),
	}
	var o utils.OutputBuf
	hdr.append(&o)
	if _, err := w.bw.Write(o.Bytes()); err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// WriteSegment appends one segment. Callers must deliver segments in final
// source order; the writer does no reordering.
func (w *Writer) WriteSegment(seg *Segment) error {
	if w.done {
		panic("WriteSegment on closed writer")
	}
	var o utils.OutputBuf
	o.AppendUint8(uint8(seg.Kind))
	bodyLen := uint64(len(seg.Data)) + 8 // op count prefix
	if seg.Kind == SegmentFunction {
		bodyLen += 4 + 8 // func id, frame size
	}
	o.AppendUint64(bodyLen)
	if seg.Kind == SegmentFunction {
		o.AppendUint32(seg.FuncID)
		o.AppendUint64(seg.FrameSize)
	}
	o.AppendUint64(seg.NumOps)
	if _, err := w.bw.Write(o.Bytes()); err != nil {
		return fmt.Errorf("writing segment %d: %w", seg.Seq, err)
	}
	if _, err := w.bw.Write(seg.Data); err != nil {
		return fmt.Errorf("writing segment %d: %w", seg.Seq, err)
	}
	w.segs++
	return nil
}

// Close writes the footer, patches the wire-count bound into the header and
// atomically publishes the file at its final path.
func (w *Writer) Close(wireBound uint64) error {
	if w.done {
		return nil
	}
	w.done = true
	var o utils.OutputBuf
	o.AppendUint64(w.segs)
	o.AppendUint64(FileMagic)
	if _, err := w.bw.Write(o.Bytes()); err != nil {
		w.discard()
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flushing output: %w", err)
	}
	var b utils.OutputBuf
	b.AppendUint64(wireBound)
	if _, err := w.tmp.WriteAt(b.Bytes(), wireBoundOffset); err != nil {
		w.discard()
		return fmt.Errorf("patching wire bound: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("syncing output: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("publishing output: %w", err)
	}
	return nil
}

// Abort discards the partial output. Safe to call after Close, where it is
// a no-op.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
