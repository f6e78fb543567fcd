package archivefmt

import (
	"io"

	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

// WriteHeader writes h as the archive's line-1 header record.
func WriteHeader(w io.Writer, h event.Header) error {
	return writeLine(w, event.HeaderToValue(h))
}

// WriteEvent writes one event record in its line-array wire form.
func WriteEvent(w io.Writer, e event.Event) error {
	return writeLine(w, event.ToValue(e))
}

func writeLine(w io.Writer, v jsonvalue.Value) error {
	data, err := jsonvalue.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}
