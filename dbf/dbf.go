// Package dbf reads and writes DBF tables: a pure in-memory DBF to CSV
// converter, plus a file-backed handler for typed record access.
package dbf

import (
	"os"
	"sync"

	"github.com/axgle/mahonia"
	"github.com/pkg/errors"
)

const (
	SPACE      = 0x20
	EOF        = 0x1A
	NUL        = 0x00
	DELETED    = 0x2A
	TERMINATOR = 0x0D
)

const (
	headerSize          = 32
	fieldDescriptorSize = 32
)

// Handler provides random access to a DBF file on disk. Records are mapped
// onto a caller-supplied struct model via `dbf:"column"` tags. All exported
// methods are safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	fileName string
	f        *os.File
	fileSize int64
	encoder  mahonia.Encoder
	decoder  mahonia.Decoder
	header   DBFHeader

	fields           []Field
	modelColumnIndex map[string]int
}

// Open opens fileName for reading and writing, parses the header and field
// descriptor table, and binds the struct model's tagged fields to columns.
// An unknown encoding name falls back to Latin-1 text handling.
func Open(fileName string, encoding string, model interface{}) (*Handler, error) {
	f, err := os.OpenFile(fileName, os.O_RDWR, 0770)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	fileStat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", fileName)
	}
	h := &Handler{
		fileName: fileName,
		encoder:  mahonia.NewEncoder(encoding),
		decoder:  mahonia.NewDecoder(encoding),
		f:        f,
		fileSize: fileStat.Size(),
	}
	if err := h.initMetaData(model); err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// Reload drops the in-memory metadata and re-reads it from disk, picking up
// changes made by other processes.
func (h *Handler) Reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reload()
}

func (h *Handler) reload() error {
	if err := h.f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", h.fileName)
	}
	f, err := os.OpenFile(h.fileName, os.O_RDWR, 0770)
	if err != nil {
		return errors.Wrapf(err, "reopen %s", h.fileName)
	}
	fileStat, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", h.fileName)
	}
	h.f = f
	h.fileSize = fileStat.Size()
	if err := h.initHeader(); err != nil {
		return err
	}
	return h.initFields()
}

func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}

// NumRecords reports the record count declared in the header, deleted
// records included.
func (h *Handler) NumRecords() uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.header.NumRecords
}

// Fields returns the sanitized column metadata in descriptor order.
func (h *Handler) Fields() []Field {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fields := make([]Field, len(h.fields))
	copy(fields, h.fields)
	return fields
}

// IsDeleted reports whether the record at index carries the deletion flag.
func (h *Handler) IsDeleted(index uint32) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if index >= h.header.NumRecords {
		return false, errors.New("index out of range")
	}
	var flag [1]byte
	offset := int64(h.header.HeaderLength) + int64(h.header.RecordLength)*int64(index)
	if _, err := h.f.ReadAt(flag[:], offset); err != nil {
		return false, errors.Wrapf(err, "read deletion flag of record %d", index)
	}
	return flag[0] == DELETED, nil
}

// ToCSV snapshots the file into memory and runs the buffer converter on it.
// Deleted records are excluded, matching Convert.
func (h *Handler) ToCSV() (*ConvertResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	buf, err := os.ReadFile(h.fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", h.fileName)
	}
	return convert(buf, h.decoder)
}
