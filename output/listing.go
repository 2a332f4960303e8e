package output

import (
	"fmt"
	"io"

	"github.com/retroasm/xasm8/assembler"
)

// WriteListing emits a human-readable dump: storage address, up to
// eight bytes per row, and the originating source line.
func WriteListing(w io.Writer, p *assembler.Program) error {
	if p.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", p.Title); err != nil {
			return err
		}
	}
	for _, c := range p.Chunks {
		addr := c.Addr
		data := c.Bytes
		first := true
		for len(data) > 0 {
			n := len(data)
			if n > 8 {
				n = 8
			}
			row := ""
			for _, d := range data[:n] {
				row += fmt.Sprintf("%02X ", d)
			}
			loc := ""
			if first {
				loc = c.Loc.String()
				first = false
			}
			if _, err := fmt.Fprintf(w, "%04X  %-24s %s\n", addr, row, loc); err != nil {
				return err
			}
			addr += uint16(n)
			data = data[n:]
		}
	}
	return nil
}

// WriteSymbols dumps the defined symbols sorted by name.
func WriteSymbols(w io.Writer, p *assembler.Program) error {
	for _, s := range p.Symbols.All() {
		if _, err := fmt.Fprintf(w, "%-16s = $%04X  %s\n", s.Name, uint16(s.Value), s.Kind); err != nil {
			return err
		}
	}
	return nil
}
