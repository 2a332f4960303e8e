package assembler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retroasm/xasm8/cpu"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cpu: 6809
dialect: flex
origin: 0x100
include: [lib]
format: srec
sources: [main.asm]
output: main.s19
`), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "6809", c.CPU)
	require.Equal(t, []string{"main.asm"}, c.Sources)

	opts, err := c.Options()
	require.NoError(t, err)
	require.Equal(t, cpu.M6809, opts.Family)
	require.Equal(t, Flex, opts.Dialect)
	require.Equal(t, uint16(0x100), opts.Origin)
	require.Equal(t, []string{"lib"}, opts.IncludeDirs)
}

func TestConfigDefaults(t *testing.T) {
	opts, err := (&Config{}).Options()
	require.NoError(t, err)
	require.Equal(t, cpu.M6502, opts.Family)
	require.Equal(t, Flex, opts.Dialect)
}

func TestConfigRejectsUnknownCPU(t *testing.T) {
	_, err := (&Config{CPU: "68000"}).Options()
	require.Error(t, err)
}

func TestAssembleBatch(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.asm")
	second := filepath.Join(dir, "b.asm")
	require.NoError(t, os.WriteFile(first, []byte(" FCB 1\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(" FCB 2\n"), 0o644))

	results, err := AssembleBatch(context.Background(), opts6502, []string{first, second})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Input order is preserved regardless of worker scheduling.
	require.Equal(t, first, results[0].Path)
	require.Equal(t, []byte{1}, flatBytes(results[0].Program))
	require.Equal(t, []byte{2}, flatBytes(results[1].Program))
}
