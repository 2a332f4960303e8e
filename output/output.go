// Package output writes assembled programs in the supported object
// formats: raw binary, Intel HEX, Motorola S-record, plus listing and
// symbol map text.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/retroasm/xasm8/assembler"
)

// Format selects an object file format.
type Format int

const (
	Binary Format = iota
	IntelHex
	SRecord
)

func (f Format) String() string {
	switch f {
	case Binary:
		return "bin"
	case IntelHex:
		return "hex"
	case SRecord:
		return "srec"
	}
	return "unknown"
}

// ParseFormat converts a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bin", "binary", "raw", "":
		return Binary, nil
	case "hex", "ihex", "intel":
		return IntelHex, nil
	case "srec", "s19", "motorola":
		return SRecord, nil
	}
	return 0, fmt.Errorf("unsupported output format: %s", s)
}

// Write emits the program in the selected format.
func Write(w io.Writer, f Format, p *assembler.Program) error {
	switch f {
	case Binary:
		return WriteBinary(w, p)
	case IntelHex:
		return WriteIntelHex(w, p)
	case SRecord:
		return WriteSRecord(w, p)
	}
	return fmt.Errorf("unsupported output format")
}

// sortedChunks returns the program's chunks ordered by address.
func sortedChunks(p *assembler.Program) []assembler.Chunk {
	chunks := append([]assembler.Chunk(nil), p.Chunks...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Addr < chunks[j].Addr })
	return chunks
}

// WriteBinary emits a flat image from the lowest to the highest
// emitted address, zero-filling gaps.
func WriteBinary(w io.Writer, p *assembler.Program) error {
	chunks := sortedChunks(p)
	if len(chunks) == 0 {
		return nil
	}
	base := int(chunks[0].Addr)
	end := base
	for _, c := range chunks {
		if top := int(c.Addr) + len(c.Bytes); top > end {
			end = top
		}
	}
	image := make([]byte, end-base)
	for _, c := range chunks {
		copy(image[int(c.Addr)-base:], c.Bytes)
	}
	_, err := w.Write(image)
	return err
}

// WriteIntelHex emits 16-byte data records and the EOF record.
func WriteIntelHex(w io.Writer, p *assembler.Program) error {
	for _, c := range sortedChunks(p) {
		addr := c.Addr
		data := c.Bytes
		for len(data) > 0 {
			n := len(data)
			if n > 16 {
				n = 16
			}
			if err := ihexRecord(w, 0x00, addr, data[:n]); err != nil {
				return err
			}
			addr += uint16(n)
			data = data[n:]
		}
	}
	return ihexRecord(w, 0x01, 0, nil)
}

func ihexRecord(w io.Writer, typ byte, addr uint16, data []byte) error {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	var b strings.Builder
	fmt.Fprintf(&b, ":%02X%04X%02X", len(data), addr, typ)
	for _, d := range data {
		fmt.Fprintf(&b, "%02X", d)
		sum += d
	}
	// Checksum is the two's complement of the record byte sum.
	fmt.Fprintf(&b, "%02X\n", 0-sum)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSRecord emits an S0 header, S1 data records and the S9
// termination record carrying the entry address.
func WriteSRecord(w io.Writer, p *assembler.Program) error {
	// "HDR" header record.
	if _, err := io.WriteString(w, "S00600004844521B\n"); err != nil {
		return err
	}
	for _, c := range sortedChunks(p) {
		addr := c.Addr
		data := c.Bytes
		for len(data) > 0 {
			n := len(data)
			if n > 16 {
				n = 16
			}
			if err := srecRecord(w, '1', addr, data[:n]); err != nil {
				return err
			}
			addr += uint16(n)
			data = data[n:]
		}
	}
	entry := uint16(0)
	if p.HasEntry {
		entry = p.Entry
	}
	return srecRecord(w, '9', entry, nil)
}

func srecRecord(w io.Writer, typ byte, addr uint16, data []byte) error {
	count := byte(len(data) + 3) // address + checksum
	sum := count + byte(addr>>8) + byte(addr)
	var b strings.Builder
	fmt.Fprintf(&b, "S%c%02X%04X", typ, count, addr)
	for _, d := range data {
		fmt.Fprintf(&b, "%02X", d)
		sum += d
	}
	// Checksum is the one's complement of the byte sum.
	fmt.Fprintf(&b, "%02X\n", ^sum)
	_, err := io.WriteString(w, b.String())
	return err
}
