package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Magic identifies a Nyx bytecode file; ABIVersion gates any change to
// opcode numbering, value encoding, or this header (spec §6.4).
var Magic = [4]byte{'N', 'Y', 'X', 'B'}

const ABIVersion uint32 = 1

const (
	tagNil uint8 = iota
	tagBool
	tagNumber
	tagString
)

// Serialize writes a deterministic encoding of chunk: header, constant
// pool, code, and function table, in that order. Integers are
// little-endian; strings are u32-length-prefixed UTF-8. Iteration is
// always over the already-ordered slices the compiler produced, never a
// map, so repeated calls on an unchanged chunk produce byte-identical
// output.
func Serialize(w io.Writer, chunk *Chunk) error {
	if err := binary.Write(w, binary.LittleEndian, Magic); err != nil {
		return errors.Wrap(err, "write magic")
	}
	if err := binary.Write(w, binary.LittleEndian, ABIVersion); err != nil {
		return errors.Wrap(err, "write abi version")
	}

	if err := writeU32(w, uint32(len(chunk.Constants))); err != nil {
		return errors.Wrap(err, "write constant pool length")
	}
	for _, c := range chunk.Constants {
		if err := writeConstant(w, c); err != nil {
			return errors.Wrap(err, "write constant")
		}
	}

	if err := writeU32(w, uint32(len(chunk.Code))); err != nil {
		return errors.Wrap(err, "write code length")
	}
	for _, in := range chunk.Code {
		if err := writeInstruction(w, in); err != nil {
			return errors.Wrap(err, "write instruction")
		}
	}

	if err := writeU32(w, uint32(len(chunk.Functions))); err != nil {
		return errors.Wrap(err, "write function table length")
	}
	for _, fn := range chunk.Functions {
		if err := writeString(w, fn.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.EntryAddr)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.Arity)); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a chunk previously written by Serialize, rejecting
// any magic/ABI mismatch outright rather than guessing at a layout.
func Deserialize(r io.Reader) (*Chunk, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if magic != Magic {
		return nil, fmt.Errorf("bytecode: bad magic %q", magic)
	}
	var abi uint32
	if err := binary.Read(r, binary.LittleEndian, &abi); err != nil {
		return nil, errors.Wrap(err, "read abi version")
	}
	if abi != ABIVersion {
		return nil, fmt.Errorf("bytecode: unsupported ABI version %d, want %d", abi, ABIVersion)
	}

	chunk := NewChunk()

	constCount, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(err, "read constant pool length")
	}
	for i := uint32(0); i < constCount; i++ {
		c, err := readConstant(r)
		if err != nil {
			return nil, errors.Wrap(err, "read constant")
		}
		chunk.Constants = append(chunk.Constants, c)
	}

	codeCount, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(err, "read code length")
	}
	for i := uint32(0); i < codeCount; i++ {
		in, err := readInstruction(r)
		if err != nil {
			return nil, errors.Wrap(err, "read instruction")
		}
		chunk.Code = append(chunk.Code, in)
		chunk.Debug = append(chunk.Debug, DebugInfo{})
	}

	fnCount, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(err, "read function table length")
	}
	for i := uint32(0); i < fnCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		entry, err := readU32(r)
		if err != nil {
			return nil, err
		}
		arity, err := readU32(r)
		if err != nil {
			return nil, err
		}
		chunk.Functions = append(chunk.Functions, FunctionInfo{Name: name, EntryAddr: int(entry), Arity: int(arity)})
	}
	return chunk, nil
}

func writeConstant(w io.Writer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		return writeByte(w, tagNil)
	case bool:
		if err := writeByte(w, tagBool); err != nil {
			return err
		}
		b := byte(0)
		if val {
			b = 1
		}
		return writeByte(w, b)
	case float64:
		if err := writeByte(w, tagNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, val)
	case string:
		if err := writeByte(w, tagString); err != nil {
			return err
		}
		return writeString(w, val)
	default:
		return fmt.Errorf("bytecode: unsupported constant type %T", v)
	}
}

func readConstant(r io.Reader) (interface{}, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagBool:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagNumber:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, err
		}
		return f, nil
	case tagString:
		return readString(r)
	default:
		return nil, fmt.Errorf("bytecode: unknown constant tag %d", tag)
	}
}

func writeInstruction(w io.Writer, in Instruction) error {
	if err := writeByte(w, byte(in.Op)); err != nil {
		return err
	}
	if err := writeI32(w, int32(in.A)); err != nil {
		return err
	}
	if err := writeI32(w, int32(in.B)); err != nil {
		return err
	}
	if err := writeString(w, in.Name); err != nil {
		return err
	}
	if err := writeI32(w, int32(in.ConstIndex)); err != nil {
		return err
	}
	flag := byte(0)
	if in.Flag {
		flag = 1
	}
	return writeByte(w, flag)
}

func readInstruction(r io.Reader) (Instruction, error) {
	var in Instruction
	op, err := readByte(r)
	if err != nil {
		return in, err
	}
	in.Op = Op(op)
	a, err := readI32(r)
	if err != nil {
		return in, err
	}
	in.A = int(a)
	b, err := readI32(r)
	if err != nil {
		return in, err
	}
	in.B = int(b)
	name, err := readString(r)
	if err != nil {
		return in, err
	}
	in.Name = name
	ci, err := readI32(r)
	if err != nil {
		return in, err
	}
	in.ConstIndex = int(ci)
	flag, err := readByte(r)
	if err != nil {
		return in, err
	}
	in.Flag = flag != 0
	return in, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeI32(w io.Writer, v int32) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeByte(w io.Writer, b byte) error  { _, err := w.Write([]byte{b}); return err }

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readI32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// RoundTrip serializes then deserializes chunk, used by tests to assert
// format stability without writing to disk.
func RoundTrip(chunk *Chunk) (*Chunk, error) {
	var buf bytes.Buffer
	if err := Serialize(&buf, chunk); err != nil {
		return nil, err
	}
	return Deserialize(&buf)
}
