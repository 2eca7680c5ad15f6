package dbf

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preamble(numRecords uint32, headerLength, recordLength uint16) []byte {
	buf := make([]byte, headerSize)
	buf[0] = 0x03
	binary.LittleEndian.PutUint32(buf[4:], numRecords)
	binary.LittleEndian.PutUint16(buf[8:], headerLength)
	binary.LittleEndian.PutUint16(buf[10:], recordLength)
	return buf
}

func descriptorEntry(name string, typ byte, length, decimal byte) []byte {
	buf := make([]byte, fieldDescriptorSize)
	copy(buf[:11], name)
	buf[11] = typ
	buf[16] = length
	buf[17] = decimal
	return buf
}

func liveRecord(cells ...string) []byte {
	buf := []byte{SPACE}
	for _, cell := range cells {
		buf = append(buf, cell...)
	}
	return buf
}

func deletedRecord(cells ...string) []byte {
	buf := liveRecord(cells...)
	buf[0] = DELETED
	return buf
}

func concat(parts ...[]byte) []byte {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func TestConvertMinimalFile(t *testing.T) {
	buf := concat(
		preamble(1, 65, 11),
		descriptorEntry("NAME", 'C', 10, 0),
		[]byte{TERMINATOR},
		liveRecord("HELLO     "),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	assert.Equal(t, "NAME\r\nHELLO", res.CSV)
	assert.Equal(t, uint32(1), res.DeclaredRecordCount)
	assert.Equal(t, uint32(1), res.ParsedRecordCount)
	assert.Equal(t, uint16(65), res.HeaderLength)
	assert.Equal(t, uint16(11), res.RecordLength)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, Field{Name: "NAME", Type: 'C', Length: 10}, res.Fields[0])
}

func TestConvertMalformedInputs(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{
			name: "buffer shorter than preamble",
			buf:  make([]byte, 31),
			want: ErrTooSmall,
		},
		{
			name: "empty buffer",
			buf:  nil,
			want: ErrTooSmall,
		},
		{
			name: "zero header length",
			buf:  preamble(1, 0, 11),
			want: ErrMalformedHeader,
		},
		{
			name: "zero record length",
			buf:  preamble(1, 65, 0),
			want: ErrMalformedHeader,
		},
		{
			name: "header length beyond buffer",
			buf:  preamble(1, 500, 11),
			want: ErrHeaderTooLarge,
		},
		{
			name: "terminator with no descriptors",
			buf:  concat(preamble(0, 33, 11), []byte{TERMINATOR}),
			want: ErrNoFields,
		},
		{
			name: "no room for a single record",
			buf: concat(
				preamble(1, 65, 11),
				descriptorEntry("NAME", 'C', 10, 0),
				[]byte{TERMINATOR},
			),
			want: ErrPayloadTruncated,
		},
		{
			name: "field span past end of buffer",
			buf: concat(
				preamble(1, 65, 11),
				descriptorEntry("NAME", 'C', 20, 0),
				[]byte{TERMINATOR},
				liveRecord("0123456789"),
			),
			want: ErrRecordOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Convert(tt.buf)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestConvertSkipsDeletedRecords(t *testing.T) {
	buf := concat(
		preamble(3, 65, 6),
		descriptorEntry("NAME", 'C', 5, 0),
		[]byte{TERMINATOR},
		liveRecord("AAAA "),
		deletedRecord("BBBB "),
		liveRecord("CCCC "),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	assert.Equal(t, "NAME\r\nAAAA\r\nCCCC", res.CSV)
	assert.Equal(t, uint32(3), res.DeclaredRecordCount)
	assert.Equal(t, uint32(2), res.ParsedRecordCount)
	assert.NotContains(t, res.CSV, "BBBB")
}

func TestConvertToleratesTruncatedTail(t *testing.T) {
	buf := concat(
		preamble(3, 65, 6),
		descriptorEntry("NAME", 'C', 5, 0),
		[]byte{TERMINATOR},
		liveRecord("AAAA "),
		liveRecord("BBBB "),
		[]byte{SPACE, 'C', 'C'}, // third record cut short
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), res.DeclaredRecordCount)
	assert.Equal(t, uint32(2), res.ParsedRecordCount)
	assert.Equal(t, "NAME\r\nAAAA\r\nBBBB", res.CSV)
}

func TestConvertStopsAtDeclaredCount(t *testing.T) {
	// Extra bytes after the declared records (a second row and the EOF
	// marker) must never be scanned.
	buf := concat(
		preamble(1, 65, 6),
		descriptorEntry("NAME", 'C', 5, 0),
		[]byte{TERMINATOR},
		liveRecord("AAAA "),
		liveRecord("ZZZZ "),
		[]byte{EOF},
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), res.ParsedRecordCount)
	assert.Equal(t, "NAME\r\nAAAA", res.CSV)
}

func TestConvertEscaping(t *testing.T) {
	cell := `He said "hi", ok` // 16 bytes
	buf := concat(
		preamble(1, 97, 21),
		descriptorEntry("A,B", 'C', 16, 0),
		descriptorEntry("PLAIN", 'C', 4, 0),
		[]byte{TERMINATOR},
		liveRecord(cell, "a\nb "),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	lines := strings.SplitN(res.CSV, "\r\n", 2)
	require.Len(t, lines, 2)
	assert.Equal(t, `"A,B",PLAIN`, lines[0])
	assert.Equal(t, `"He said ""hi"", ok","a`+"\n"+`b"`, lines[1])
}

func TestConvertFieldNamePlaceholder(t *testing.T) {
	blank := descriptorEntry("", 'C', 3, 0) // name bytes all NUL
	buf := concat(
		preamble(1, 97, 7),
		blank,
		descriptorEntry("REAL", 'C', 3, 0),
		[]byte{TERMINATOR},
		liveRecord("abc", "def"),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	require.Len(t, res.Fields, 2)
	assert.Equal(t, "FIELD_1", res.Fields[0].Name)
	assert.Equal(t, "REAL", res.Fields[1].Name)
	assert.Equal(t, "FIELD_1,REAL\r\nabc,def", res.CSV)
}

func TestConvertDescriptorTableWithoutTerminator(t *testing.T) {
	// Descriptors may run flush against the header boundary with no 0x0D.
	buf := concat(
		preamble(1, 64, 4),
		descriptorEntry("NAME", 'C', 3, 0),
		liveRecord("xyz"),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	require.Len(t, res.Fields, 1)
	assert.Equal(t, "NAME\r\nxyz", res.CSV)
}

func TestConvertLatin1Default(t *testing.T) {
	buf := concat(
		preamble(1, 65, 3),
		descriptorEntry("TXT", 'C', 2, 0),
		[]byte{TERMINATOR},
		[]byte{SPACE, 0xE9, 0xE8}, // é è in Latin-1
	)

	res, err := Convert(buf)
	require.NoError(t, err)
	assert.Equal(t, "TXT\r\néè", res.CSV)

	// An unknown charset name falls back to the same Latin-1 decode.
	fallback, err := ConvertWithEncoding(buf, "no-such-charset")
	require.NoError(t, err)
	assert.Equal(t, res.CSV, fallback.CSV)
}

func TestConvertWithEncodingGBK(t *testing.T) {
	buf := concat(
		preamble(1, 65, 3),
		descriptorEntry("TXT", 'C', 2, 0),
		[]byte{TERMINATOR},
		[]byte{SPACE, 0xD6, 0xD0}, // GBK for U+4E2D
	)

	res, err := ConvertWithEncoding(buf, "gbk")
	require.NoError(t, err)
	assert.Equal(t, "TXT\r\n中", res.CSV)
}

func TestConvertRowShape(t *testing.T) {
	buf := concat(
		preamble(2, 97, 9),
		descriptorEntry("A", 'C', 4, 0),
		descriptorEntry("B", 'N', 4, 0),
		[]byte{TERMINATOR},
		liveRecord("aaaa", "   1"),
		liveRecord("bbbb", "   2"),
	)

	res, err := Convert(buf)
	require.NoError(t, err)

	rows := strings.Split(res.CSV, "\r\n")
	require.Len(t, rows, 1+int(res.ParsedRecordCount))
	for _, row := range rows {
		assert.Len(t, strings.Split(row, ","), len(res.Fields))
	}
	assert.LessOrEqual(t, res.ParsedRecordCount, res.DeclaredRecordCount)
}
