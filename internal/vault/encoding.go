package vault

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// discriminator is the 8-byte type tag sha256("<namespace>:<name>")[:8].
func discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// encoder writes little-endian fields with u32 length-prefixed strings.
type encoder struct {
	buf []byte
}

func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }
func (e *encoder) pubkey(pk solana.Pubkey) { e.buf = append(e.buf, pk[:]...) }
func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) str(s string) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// decoder reads fields written by encoder. The first short read sets err and
// every later read returns zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("unexpected end of data at offset %d", d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) pubkey() solana.Pubkey {
	var pk solana.Pubkey
	if b := d.take(32); b != nil {
		copy(pk[:], b)
	}
	return pk
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	return int64(d.u64())
}

func (d *decoder) str(max int) string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if int64(n) > int64(max) {
		d.err = fmt.Errorf("string length %d exceeds %d", n, max)
		return ""
	}
	return string(d.take(int(n)))
}

// finish reports a decode error or trailing bytes.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%d trailing bytes", len(d.buf)-d.off)
	}
	return nil
}
