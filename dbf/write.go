package dbf

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Append serializes the tagged struct pointed to by model into one
// fixed-width record and writes it before the EOF marker, then updates the
// header record count and last-update date. A failed header update rolls
// the record back so the file stays consistent.
func (h *Handler) Append(model interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("Append requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.Errorf("Append requires a pointer to a struct, not a %s", rv.Kind())
	}

	// Space-filled record buffer plus one trailing byte for the EOF marker.
	// The first byte stays SPACE: not deleted.
	buf := bytes.Repeat([]byte{SPACE}, int(h.header.RecordLength)+1)
	pos := 1
	for i := range h.fields {
		field := h.fields[i]
		fieldIndex, ok := h.modelColumnIndex[field.Name]
		if !ok {
			return errors.Errorf("column %s not found in model", field.Name)
		}
		fieldVal := rv.Field(fieldIndex)
		var valStr string
		switch fieldVal.Kind() {
		case reflect.String:
			valStr = encodeText(h.encoder, fieldVal.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			valStr = strconv.FormatInt(fieldVal.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			valStr = strconv.FormatUint(fieldVal.Uint(), 10)
		case reflect.Float32, reflect.Float64:
			decimalPlace := int(field.Decimal)
			if decimalPlace == 0 {
				decimalPlace = 2
			}
			valStr = strconv.FormatFloat(fieldVal.Float(), 'f', decimalPlace, 64)
		}
		// Write at the column's start position, truncating when too long.
		// The column must stay inside the record, same as on the read path.
		nextPos := pos + int(field.Length)
		if nextPos > int(h.header.RecordLength) {
			return errors.Wrapf(ErrRecordOverflow, "field %q", field.Name)
		}
		copy(buf[pos:nextPos], valStr)
		pos = nextPos
	}
	buf[pos] = EOF

	if err := h.saveRecord(buf); err != nil {
		return err
	}
	if err := h.saveNumRecords(1); err != nil {
		return err
	}
	year, month, day, err := h.saveUpdateTime()
	if err != nil {
		return err
	}
	if err := h.f.Sync(); err != nil {
		defer h.rollbackRecord()
		defer h.rollbackNumRecords()
		defer h.rollbackUpdateTime()
		return errors.Wrap(err, "sync after append")
	}

	h.header.LastUpdateYear = year
	h.header.LastUpdateMonth = month
	h.header.LastUpdateDay = day
	h.header.NumRecords++
	h.fileSize += int64(h.header.RecordLength)
	return nil
}

// Delete marks the record at index as deleted in place. The bytes stay in
// the file; typed reads refuse the record and the converter skips it.
func (h *Handler) Delete(index uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= h.header.NumRecords {
		return errors.New("index out of range")
	}
	offset := int64(h.header.HeaderLength) + int64(h.header.RecordLength)*int64(index)
	if _, err := h.f.WriteAt([]byte{DELETED}, offset); err != nil {
		return errors.Wrapf(err, "flag record %d as deleted", index)
	}
	if err := h.f.Sync(); err != nil {
		return errors.Wrapf(err, "sync after deleting record %d", index)
	}
	return nil
}

func (h *Handler) saveRecord(buf []byte) error {
	// Move back over the EOF marker so the new record overwrites it.
	if _, err := h.f.Seek(-1, io.SeekEnd); err != nil {
		_ = h.reload()
		return errors.Wrap(err, "seek to end of records")
	}
	if _, err := h.f.Write(buf); err != nil {
		_ = h.reload()
		return errors.Wrap(err, "write record")
	}
	return nil
}

func (h *Handler) rollbackRecord() error {
	originalSize := int64(h.header.HeaderLength) + int64(h.header.RecordLength)*int64(h.header.NumRecords)
	if err := h.f.Truncate(originalSize); err != nil {
		return errors.Wrap(err, "truncate while rolling back record")
	}
	if _, err := h.f.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "seek while rolling back record")
	}
	if _, err := h.f.Write([]byte{EOF}); err != nil {
		return errors.Wrap(err, "restore EOF marker while rolling back record")
	}
	return nil
}

func (h *Handler) saveNumRecords(appendNum uint32) error {
	newNumRecords := h.header.NumRecords + appendNum
	if _, err := h.f.Seek(4, io.SeekStart); err != nil {
		defer h.rollbackRecord()
		return errors.Wrap(err, "seek while saving record count")
	}
	if err := binary.Write(h.f, binary.LittleEndian, newNumRecords); err != nil {
		defer h.rollbackRecord()
		return errors.Wrap(err, "write while saving record count")
	}
	return nil
}

func (h *Handler) rollbackNumRecords() error {
	if _, err := h.f.Seek(4, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek while rolling back record count")
	}
	if err := binary.Write(h.f, binary.LittleEndian, h.header.NumRecords); err != nil {
		return errors.Wrap(err, "write while rolling back record count")
	}
	return nil
}

func (h *Handler) saveUpdateTime() (year, month, day byte, err error) {
	yearInt, monthInt, dayInt := time.Now().Date()
	year = byte(yearInt - 1900)
	month = byte(monthInt)
	day = byte(dayInt)

	if _, err = h.f.Seek(1, io.SeekStart); err != nil {
		defer h.rollbackRecord()
		defer h.rollbackNumRecords()
		return year, month, day, errors.Wrap(err, "seek while saving update time")
	}
	if _, err = h.f.Write([]byte{year, month, day}); err != nil {
		defer h.rollbackRecord()
		defer h.rollbackNumRecords()
		return year, month, day, errors.Wrap(err, "write while saving update time")
	}
	return year, month, day, nil
}

func (h *Handler) rollbackUpdateTime() error {
	if _, err := h.f.Seek(1, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek while rolling back update time")
	}
	if _, err := h.f.Write([]byte{h.header.LastUpdateYear, h.header.LastUpdateMonth, h.header.LastUpdateDay}); err != nil {
		return errors.Wrap(err, "write while rolling back update time")
	}
	return nil
}
