package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/axgle/mahonia"
	"github.com/pkg/errors"
)

// ConvertResult is the product of one conversion: the CSV text plus the
// summary a caller needs to sanity-check the file against what it claims.
type ConvertResult struct {
	CSV                 string
	DeclaredRecordCount uint32
	ParsedRecordCount   uint32
	HeaderLength        uint16
	RecordLength        uint16
	Fields              []Field
}

// Convert decodes a complete DBF file held in memory and renders it as CSV.
// Text is decoded byte-per-rune (Latin-1), which keeps arbitrary legacy
// single-byte content readable without guessing a charset.
//
// The call is pure: buf is never modified, and identical input always yields
// identical output. It is safe to call from any number of goroutines.
func Convert(buf []byte) (*ConvertResult, error) {
	return convert(buf, nil)
}

// ConvertWithEncoding is Convert with record text decoded through the named
// charset. An unknown charset name falls back to the Latin-1 behavior of
// Convert rather than failing.
func ConvertWithEncoding(buf []byte, encoding string) (*ConvertResult, error) {
	return convert(buf, mahonia.NewDecoder(encoding))
}

func convert(buf []byte, decoder mahonia.Decoder) (*ConvertResult, error) {
	if len(buf) < headerSize {
		return nil, errors.Wrapf(ErrTooSmall, "%d bytes", len(buf))
	}

	var header DBFHeader
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if header.HeaderLength == 0 || header.RecordLength == 0 {
		return nil, errors.Wrapf(ErrMalformedHeader,
			"header length %d, record length %d", header.HeaderLength, header.RecordLength)
	}
	if int(header.HeaderLength) > len(buf) {
		return nil, errors.Wrapf(ErrHeaderTooLarge,
			"header claims %d bytes, file has %d", header.HeaderLength, len(buf))
	}

	fields, err := parseFields(buf, int(header.HeaderLength), decoder)
	if err != nil {
		return nil, err
	}

	dataStart := int(header.HeaderLength)
	recordLength := int(header.RecordLength)
	if dataStart+recordLength > len(buf) {
		return nil, errors.Wrapf(ErrPayloadTruncated,
			"data region starts at %d, record needs %d bytes, file has %d",
			dataStart, recordLength, len(buf))
	}

	var out strings.Builder
	for i, f := range fields {
		if i > 0 {
			out.WriteByte(',')
		}
		out.WriteString(csvCell(f.Name))
	}

	var parsed uint32
	for i := 0; i < int(header.NumRecords); i++ {
		offset := dataStart + i*recordLength
		if offset+recordLength > len(buf) {
			// Truncated tail: the record is wholly absent, stop quietly.
			break
		}
		if buf[offset] == DELETED {
			continue
		}
		cursor := offset + 1
		out.WriteString("\r\n")
		for j, f := range fields {
			end := cursor + int(f.Length)
			if end > len(buf) {
				return nil, errors.Wrapf(ErrRecordOverflow,
					"record %d field %q needs bytes %d..%d, file has %d",
					i, f.Name, cursor, end, len(buf))
			}
			if j > 0 {
				out.WriteByte(',')
			}
			out.WriteString(csvCell(sanitizeText(decoder, buf[cursor:end])))
			cursor = end
		}
		parsed++
	}

	return &ConvertResult{
		CSV:                 out.String(),
		DeclaredRecordCount: header.NumRecords,
		ParsedRecordCount:   parsed,
		HeaderLength:        header.HeaderLength,
		RecordLength:        header.RecordLength,
		Fields:              fields,
	}, nil
}

// parseFields walks the 32-byte descriptor entries between the preamble and
// headerLength, stopping early at the 0x0D terminator.
func parseFields(buf []byte, headerLength int, decoder mahonia.Decoder) ([]Field, error) {
	var fields []Field
	for offset := headerSize; offset < headerLength; offset += fieldDescriptorSize {
		if buf[offset] == TERMINATOR {
			break
		}
		if offset+fieldDescriptorSize > len(buf) {
			break
		}
		var descriptor FieldDescriptor
		if err := binary.Read(bytes.NewReader(buf[offset:offset+fieldDescriptorSize]),
			binary.LittleEndian, &descriptor); err != nil {
			return nil, errors.Wrapf(err, "read field descriptor at %d", offset)
		}
		name := sanitizeText(decoder, descriptor.Name[:])
		if name == "" {
			name = fmt.Sprintf("FIELD_%d", len(fields)+1)
		}
		fields = append(fields, Field{
			Name:    name,
			Type:    descriptor.Type,
			Length:  descriptor.Length,
			Decimal: descriptor.Decimal,
		})
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}

// sanitizeText turns a fixed-width byte span into cell text: strip NUL
// padding, decode, trim surrounding whitespace.
func sanitizeText(decoder mahonia.Decoder, raw []byte) string {
	clean := raw
	if bytes.IndexByte(raw, NUL) != -1 {
		clean = bytes.ReplaceAll(raw, []byte{NUL}, nil)
	}
	return strings.TrimSpace(decodeText(decoder, clean))
}

// decodeText decodes single-byte text through the configured charset, or
// byte-per-rune (Latin-1) when no charset is set. The Latin-1 path never
// fails: every byte maps to exactly one rune.
func decodeText(decoder mahonia.Decoder, raw []byte) string {
	if decoder != nil {
		return decoder.ConvertString(string(raw))
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

func encodeText(encoder mahonia.Encoder, s string) string {
	if encoder != nil {
		return encoder.ConvertString(s)
	}
	return s
}

// csvCell applies RFC 4180 quoting: wrap when the cell contains a comma,
// quote or newline, doubling embedded quotes.
func csvCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}
