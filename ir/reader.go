package ir

import (
	"fmt"
	"os"

	"github.com/rw0x0/swanky/utils"
)

// File is a fully decoded IR file, used for inspection and testing. The
// proof engine streams segments instead of loading them all, but shares the
// record layout decoded here.
type File struct {
	Header   *Header
	Segments []*Segment
}

// ReadFile reads and validates an IR file.
func ReadFile(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Decode parses a complete IR file image.
func Decode(buf []byte) (*File, error) {
	in := utils.NewInputBuf(buf)
	hdr, err := readHeader(in)
	if err != nil {
		return nil, err
	}
	f := &File{Header: hdr}
	// Segments end where the 16-byte footer starts; the footer's segment
	// count cross-checks what we decode.
	if len(buf) < 16 {
		return nil, fmt.Errorf("file too short for footer")
	}
	foot := utils.NewInputBuf(buf[len(buf)-16:])
	nSegs, _ := foot.ReadUint64()
	echo, _ := foot.ReadUint64()
	if echo != FileMagic {
		return nil, fmt.Errorf("bad footer magic %#x", echo)
	}
	for uint64(len(f.Segments)) < nSegs {
		seg, err := readSegment(in)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", len(f.Segments), err)
		}
		seg.Seq = len(f.Segments)
		f.Segments = append(f.Segments, seg)
	}
	return f, nil
}

func readSegment(in *utils.InputBuf) (*Segment, error) {
	kind, err := in.ReadUint8()
	if err != nil {
		return nil, err
	}
	seg := &Segment{Kind: SegmentKind(kind)}
	bodyLen, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	body, err := in.ReadBytes(int(bodyLen))
	if err != nil {
		return nil, err
	}
	bin := utils.NewInputBuf(body)
	switch seg.Kind {
	case SegmentFunction:
		if seg.FuncID, err = bin.ReadUint32(); err != nil {
			return nil, err
		}
		if seg.FrameSize, err = bin.ReadUint64(); err != nil {
			return nil, err
		}
	case SegmentTopLevel:
	default:
		return nil, fmt.Errorf("invalid segment kind %d", kind)
	}
	if seg.NumOps, err = bin.ReadUint64(); err != nil {
		return nil, err
	}
	seg.Data, err = bin.ReadBytes(bin.Remaining())
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// DecodeOps decodes the operation records of one segment of f.
func (f *File) DecodeOps(seg *Segment) ([]Operation, error) {
	// every record is at least an opcode and a field byte, which bounds a
	// hostile op count before it sizes an allocation
	if seg.NumOps > uint64(len(seg.Data))/2 {
		return nil, fmt.Errorf("op count %d exceeds segment size %d", seg.NumOps, len(seg.Data))
	}
	in := utils.NewInputBuf(seg.Data)
	ops := make([]Operation, 0, seg.NumOps)
	for uint64(len(ops)) < seg.NumOps {
		op, err := f.decodeOp(in)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", len(ops), err)
		}
		ops = append(ops, *op)
	}
	if !in.IsEnd() {
		return nil, fmt.Errorf("%d trailing bytes after %d operations", in.Remaining(), seg.NumOps)
	}
	return ops, nil
}

func (f *File) decodeOp(in *utils.InputBuf) (*Operation, error) {
	opcode, err := in.ReadUint8()
	if err != nil {
		return nil, err
	}
	op := &Operation{Op: Opcode(opcode)}
	if op.Field, err = in.ReadUint8(); err != nil {
		return nil, err
	}
	if int(op.Field) >= len(f.Header.Fields) && op.Op != OpCall && op.Op != OpPlugin {
		return nil, fmt.Errorf("field index %d out of range", op.Field)
	}
	switch op.Op {
	case OpConst, OpPublic, OpWitness:
		if op.Out, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpAdd, OpMul:
		if op.Out, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.In0, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.In1, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpAddConst, OpMulConst:
		if op.Out, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.In0, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpCopy:
		if op.Out, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.In0, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpAssertZero:
		if op.In0, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpNew, OpDelete:
		if op.Base, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.Count, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	case OpCall, OpPlugin:
		if op.Callee, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if op.Outs, err = readRanges(in); err != nil {
			return nil, err
		}
		if op.Ins, err = readRanges(in); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid opcode %d", opcode)
	}
	if op.Op.HasPayload() && f.Header.Party.EmbedsValues() {
		if op.Payload, err = f.Header.Fields[op.Field].Read(in); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func readRanges(in *utils.InputBuf) ([]SlotRange, error) {
	n, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	// 8 bytes per range
	if n > uint64(in.Remaining())/8 {
		return nil, fmt.Errorf("range count %d exceeds remaining input %d", n, in.Remaining())
	}
	rs := make([]SlotRange, n)
	for i := range rs {
		if rs[i].First, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if rs[i].Count, err = in.ReadUint32(); err != nil {
			return nil, err
		}
	}
	return rs, nil
}
