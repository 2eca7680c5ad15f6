package dbf

import (
	"encoding/binary"
	"io"
	"reflect"

	"github.com/pkg/errors"
)

func (h *Handler) initMetaData(model interface{}) error {
	if err := h.initHeader(); err != nil {
		return err
	}
	if err := h.initFields(); err != nil {
		return err
	}
	return h.initModel(model)
}

func (h *Handler) initHeader() error {
	if h.fileSize < headerSize {
		return errors.Wrapf(ErrTooSmall, "%d bytes", h.fileSize)
	}
	if _, err := h.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to header")
	}
	if err := binary.Read(h.f, binary.LittleEndian, &h.header); err != nil {
		return errors.Wrap(err, "read header")
	}
	if h.header.HeaderLength == 0 || h.header.RecordLength == 0 {
		return errors.Wrapf(ErrMalformedHeader,
			"header length %d, record length %d", h.header.HeaderLength, h.header.RecordLength)
	}
	if int64(h.header.HeaderLength) > h.fileSize {
		return errors.Wrapf(ErrHeaderTooLarge,
			"header claims %d bytes, file has %d", h.header.HeaderLength, h.fileSize)
	}
	return nil
}

func (h *Handler) initFields() error {
	// The whole header region is small, read it in one go and reuse the
	// buffer-based descriptor walk.
	raw := make([]byte, h.header.HeaderLength)
	if _, err := h.f.ReadAt(raw, 0); err != nil {
		return errors.Wrap(err, "read field descriptor table")
	}
	fields, err := parseFields(raw, len(raw), h.decoder)
	if err != nil {
		return err
	}
	h.fields = fields
	return nil
}

func (h *Handler) initModel(model interface{}) error {
	rt := reflect.TypeOf(model)
	if rt == nil || rt.Kind() != reflect.Ptr {
		return errors.New("model must be a pointer to a struct")
	}
	rt = rt.Elem()
	if rt.Kind() != reflect.Struct {
		return errors.Errorf("model must be a pointer to a struct, not a %v", rt.Kind())
	}
	modelColumnIndex := make(map[string]int)
	for i := 0; i < rt.NumField(); i++ {
		column := rt.Field(i).Tag.Get("dbf")
		if column == "" {
			continue
		}
		modelColumnIndex[column] = i
	}
	h.modelColumnIndex = modelColumnIndex
	return nil
}
