package dbf

// DBFHeader is the fixed 32-byte preamble of a DBF file. Field order and
// widths mirror the on-disk layout, so the struct can be read directly with
// binary.Read in little-endian byte order.
type DBFHeader struct {
	Version          byte
	LastUpdateYear   byte
	LastUpdateMonth  byte
	LastUpdateDay    byte
	NumRecords       uint32
	HeaderLength     uint16
	RecordLength     uint16
	Reserved         [2]byte
	Flag             byte
	EncryptFlag      byte
	Reserved2        [12]byte
	MDXFlag          byte
	LanguageDriverID byte
	Reserved3        [2]byte
}

// FieldDescriptor is one raw 32-byte entry of the field descriptor table.
type FieldDescriptor struct {
	Name       [11]byte
	Type       byte
	Reserved1  [4]byte
	Length     byte
	Decimal    byte
	Reserved2  [2]byte
	WorkAreaID byte
	Reserved3  [10]byte
	Flag       byte
}

// Field is the sanitized view of a FieldDescriptor: name decoded and
// trimmed, plus the attributes record decoding actually needs.
type Field struct {
	Name    string
	Type    byte
	Length  byte
	Decimal byte
}
