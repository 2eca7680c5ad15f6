package dbf

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

type workerArgs struct {
	index uint32
	value reflect.Value
}

func (h *Handler) getRecord(index uint32, rv reflect.Value) error {
	offset := int64(h.header.HeaderLength) + int64(h.header.RecordLength)*int64(index)
	data := make([]byte, h.header.RecordLength)
	if _, err := h.f.ReadAt(data, offset); err != nil {
		return errors.Wrapf(err, "read record %d", index)
	}
	if data[0] == DELETED {
		return errors.Wrapf(ErrRecordDeleted, "record %d", index)
	}

	// Skip the deletion flag, then walk the columns in descriptor order.
	pos := 1
	for i := range h.fields {
		field := h.fields[i]
		columnLength := int(field.Length)
		if pos+columnLength > len(data) {
			return errors.Wrapf(ErrRecordOverflow, "record %d field %q", index, field.Name)
		}
		columnVal := sanitizeText(h.decoder, data[pos:pos+columnLength])
		pos += columnLength

		fieldIndex, ok := h.modelColumnIndex[field.Name]
		if !ok || columnVal == "" {
			continue
		}
		fieldValue := rv.Field(fieldIndex)
		switch fieldValue.Kind() {
		case reflect.String:
			fieldValue.SetString(columnVal)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			num, err := strconv.ParseInt(columnVal, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "record %d field %q", index, field.Name)
			}
			fieldValue.SetInt(num)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			num, err := strconv.ParseUint(columnVal, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "record %d field %q", index, field.Name)
			}
			fieldValue.SetUint(num)
		case reflect.Float32, reflect.Float64:
			num, err := strconv.ParseFloat(columnVal, 64)
			if err != nil {
				return errors.Wrapf(err, "record %d field %q", index, field.Name)
			}
			fieldValue.SetFloat(num)
		}
	}
	return nil
}

// GetRecord decodes the record at index into the tagged struct pointed to
// by v. Deleted records return ErrRecordDeleted.
func (h *Handler) GetRecord(index uint32, v interface{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if index >= h.header.NumRecords {
		return errors.New("index out of range")
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("GetRecord requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.Errorf("GetRecord requires a pointer to a struct, not a %s", rv.Kind())
	}

	return h.getRecord(index, rv)
}

func (h *Handler) startWorker(workerChan []chan workerArgs, errChan chan error, wg *sync.WaitGroup) {
	for i := 0; i < len(workerChan); i++ {
		workerChan[i] = make(chan workerArgs, 16)
		go h.work(workerChan[i], errChan, wg)
	}
}

func (h *Handler) work(taskChan <-chan workerArgs, errChan chan<- error, wg *sync.WaitGroup) {
	for args := range taskChan {
		errChan <- h.getRecord(args.index, args.value)
		wg.Done()
	}
}

// GetRecords decodes records [start, end) into the slice pointed to by v,
// spreading the reads across workerNums goroutines. The slice must already
// hold at least end-start elements.
func (h *Handler) GetRecords(start, end uint32, v interface{}, workerNums int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if end > h.header.NumRecords || start > end {
		return errors.New("index out of range")
	}
	if workerNums <= 0 {
		workerNums = 1
	}

	rt := reflect.TypeOf(v)
	if rt == nil || rt.Kind() != reflect.Ptr {
		return errors.Errorf("GetRecords requires a pointer to a slice, not a %v", rt)
	}
	if rt.Elem().Kind() != reflect.Slice {
		return errors.Errorf("GetRecords requires a pointer to a slice, not a %s", rt.Elem().Kind())
	}
	if rt.Elem().Elem().Kind() != reflect.Struct {
		return errors.Errorf("GetRecords requires a pointer to a slice of struct, not a %s", rt.Elem().Elem().Kind())
	}

	rv := reflect.ValueOf(v).Elem()
	if rv.Len() < int(end-start) {
		return errors.New("value out of range")
	}

	wg := sync.WaitGroup{}
	workerChan := make([]chan workerArgs, workerNums)
	errChan := make(chan error, end-start)
	h.startWorker(workerChan, errChan, &wg)
	for i := 0; i < int(end-start); i++ {
		wg.Add(1)
		workerChan[i%workerNums] <- workerArgs{
			index: uint32(i + int(start)),
			value: rv.Index(i),
		}
	}
	wg.Wait()
	defer func() {
		for i := 0; i < workerNums; i++ {
			close(workerChan[i])
		}
		close(errChan)
	}()

	for i := 0; i < int(end-start); i++ {
		if err := <-errChan; err != nil {
			return err
		}
	}
	return nil
}
