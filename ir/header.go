package ir

import (
	"fmt"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/utils"
)

const (
	// FileMagic opens and closes every IR file.
	FileMagic uint64 = 0x3173726963767773 // "swvcirs1"

	// FormatVersion is the current file format version.
	FormatVersion uint32 = 1

	// wireBoundOffset is the byte offset of the wire-count bound inside the
	// header: it sits at a fixed position (after magic, version and party)
	// so the writer can patch it once compilation finishes.
	wireBoundOffset = 8 + 4 + 1
)

// FuncDecl is a function-table entry in the header. Call and plugin records
// in segments reference entries by ID.
type FuncDecl struct {
	ID      uint32
	Name    string
	Outputs []circuit.CountPerField
	Inputs  []circuit.CountPerField
	Plugin  *circuit.PluginBinding
}

// Header is the fixed-layout prefix of an IR file.
type Header struct {
	Party     PartyTag
	Fields    []field.Field
	Functions []FuncDecl
	// WireBound is an upper bound on the top-level slot count. The writer
	// patches it in place when the file is closed.
	WireBound uint64
}

func appendString(o *utils.OutputBuf, s string) {
	o.AppendUint64(uint64(len(s)))
	o.AppendBytes([]byte(s))
}

func readString(in *utils.InputBuf) (string, error) {
	n, err := in.ReadUint64()
	if err != nil {
		return "", err
	}
	b, err := in.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendCounts(o *utils.OutputBuf, cs []circuit.CountPerField) {
	o.AppendUint64(uint64(len(cs)))
	for _, c := range cs {
		o.AppendUint8(c.Field)
		o.AppendUint64(c.Count)
	}
}

func readCounts(in *utils.InputBuf) ([]circuit.CountPerField, error) {
	n, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	// 9 bytes per entry
	if n > uint64(in.Remaining())/9 {
		return nil, fmt.Errorf("count-table length %d exceeds remaining input %d", n, in.Remaining())
	}
	cs := make([]circuit.CountPerField, n)
	for i := range cs {
		if cs[i].Field, err = in.ReadUint8(); err != nil {
			return nil, err
		}
		if cs[i].Count, err = in.ReadUint64(); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (h *Header) append(o *utils.OutputBuf) {
	o.AppendUint64(FileMagic)
	o.AppendUint32(FormatVersion)
	o.AppendUint8(uint8(h.Party))
	o.AppendUint64(h.WireBound) // placeholder, patched on close
	o.AppendUint64(uint64(len(h.Fields)))
	for _, f := range h.Fields {
		o.AppendUint64(f.ID)
		o.AppendUint32(uint32(f.ElemLen))
		o.AppendBigInt(f.ElemLen, f.Modulus)
	}
	o.AppendUint64(uint64(len(h.Functions)))
	for _, fn := range h.Functions {
		o.AppendUint32(fn.ID)
		appendString(o, fn.Name)
		appendCounts(o, fn.Outputs)
		appendCounts(o, fn.Inputs)
		if fn.Plugin == nil {
			o.AppendUint8(0)
		} else {
			o.AppendUint8(1)
			appendString(o, fn.Plugin.Plugin)
			appendString(o, fn.Plugin.Operation)
			o.AppendUint64(uint64(len(fn.Plugin.Args)))
			for _, a := range fn.Plugin.Args {
				appendString(o, a)
			}
		}
	}
}

func readHeader(in *utils.InputBuf) (*Header, error) {
	magic, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	if magic != FileMagic {
		return nil, fmt.Errorf("not an IR file (magic %#x)", magic)
	}
	version, err := in.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported IR format version %d", version)
	}
	h := &Header{}
	party, err := in.ReadUint8()
	if err != nil {
		return nil, err
	}
	h.Party = PartyTag(party)
	switch h.Party {
	case PartyProver, PartyVerifier, PartyPublic:
	default:
		return nil, fmt.Errorf("invalid party tag %d", party)
	}
	if h.WireBound, err = in.ReadUint64(); err != nil {
		return nil, err
	}
	nFields, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nFields; i++ {
		id, err := in.ReadUint64()
		if err != nil {
			return nil, err
		}
		elemLen, err := in.ReadUint32()
		if err != nil {
			return nil, err
		}
		m, err := in.ReadBigInt(int(elemLen))
		if err != nil {
			return nil, err
		}
		f, err := field.FromModulus(m)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		if f.ID != id {
			return nil, fmt.Errorf("field %d: id %d does not match modulus", i, id)
		}
		h.Fields = append(h.Fields, f)
	}
	nFuncs, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nFuncs; i++ {
		var fn FuncDecl
		if fn.ID, err = in.ReadUint32(); err != nil {
			return nil, err
		}
		if fn.Name, err = readString(in); err != nil {
			return nil, err
		}
		if fn.Outputs, err = readCounts(in); err != nil {
			return nil, err
		}
		if fn.Inputs, err = readCounts(in); err != nil {
			return nil, err
		}
		hasPlugin, err := in.ReadUint8()
		if err != nil {
			return nil, err
		}
		if hasPlugin == 1 {
			p := &circuit.PluginBinding{}
			if p.Plugin, err = readString(in); err != nil {
				return nil, err
			}
			if p.Operation, err = readString(in); err != nil {
				return nil, err
			}
			nArgs, err := in.ReadUint64()
			if err != nil {
				return nil, err
			}
			for j := uint64(0); j < nArgs; j++ {
				a, err := readString(in)
				if err != nil {
					return nil, err
				}
				p.Args = append(p.Args, a)
			}
			fn.Plugin = p
		}
		h.Functions = append(h.Functions, fn)
	}
	return h, nil
}
