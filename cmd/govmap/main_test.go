package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// minimalDBF builds a one-column, one-record table (NAME C10, "HELLO").
func minimalDBF() []byte {
	header := make([]byte, 32)
	header[0] = 0x03
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint16(header[8:], 65)
	binary.LittleEndian.PutUint16(header[10:], 11)

	descriptor := make([]byte, 32)
	copy(descriptor[:11], "NAME")
	descriptor[11] = 'C'
	descriptor[16] = 10

	buf := append(header, descriptor...)
	buf = append(buf, 0x0D)
	buf = append(buf, ' ')
	return append(buf, "HELLO     "...)
}

func TestConvertCommandTrailingTerminator(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "min.dbf")
	require.NoError(t, os.WriteFile(input, minimalDBF(), 0644))

	var stdout bytes.Buffer
	convertCmd.SetOut(&stdout)
	output = ""
	require.NoError(t, runConvert(convertCmd, []string{input}))
	require.Equal(t, "NAME\r\nHELLO\r\n", stdout.String())

	// The file sink must end the CSV the same way as stdout.
	outPath := filepath.Join(dir, "out.csv")
	output = outPath
	defer func() { output = "" }()
	require.NoError(t, runConvert(convertCmd, []string{input}))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, stdout.String(), string(raw))
}
