// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gao-feng/Quark/lib/codec"
	"github.com/gao-feng/Quark/lib/readiness"
)

// Record is one guest-visible signal.
type Record struct {
	// Sequence numbers records from 1 in the order they were written.
	Sequence uint64              `cbor:"seq"`
	FD       int                 `cbor:"fd"`
	Mask     readiness.EventMask `cbor:"mask"`
}

// queueSize is the number of records buffered between the signalling
// path and the goroutine that encodes and writes them.
const queueSize = 4096

// Writer appends records to a trace stream. Record never blocks: it
// hands the record to a writer goroutine and drops it if that goroutine
// has fallen queueSize records behind. A dropped record still consumes
// its sequence number, so gaps in a trace mark drops. Safe for
// concurrent use.
type Writer struct {
	// mutex guards the sequence and counters and orders sends on queue
	// against Close.
	mutex    sync.Mutex
	queue    chan Record
	sequence uint64
	queued   uint64
	dropped  uint64
	closed   bool

	// Owned by the drain goroutine until done is closed.
	file       *os.File
	buffered   *bufio.Writer
	compressed io.WriteCloser
	err        error
	done       chan struct{}

	closeOnce  sync.Once
	closeError error
}

// Create opens path for writing, truncating any existing trace, and
// picks the compression from its extension.
func Create(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	writer, err := newWriter(file, CompressionForPath(path), queueSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	writer.start()
	return writer, nil
}

// NewWriter writes a trace to w. Close flushes the stream but does not
// close w.
func NewWriter(w io.Writer, compression Compression) (*Writer, error) {
	writer, err := newWriter(w, compression, queueSize)
	if err != nil {
		return nil, err
	}
	writer.start()
	return writer, nil
}

func newWriter(w io.Writer, compression Compression, size int) (*Writer, error) {
	buffered := bufio.NewWriter(w)
	compressed, err := compressor(buffered, compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		queue:      make(chan Record, size),
		buffered:   buffered,
		compressed: compressed,
		done:       make(chan struct{}),
	}, nil
}

func (w *Writer) start() {
	go w.drain()
}

// drain encodes queued records until Close closes the queue. The
// buffer is flushed whenever the queue runs empty so an idle daemon's
// trace reaches the file. The first failure is latched and later
// records are discarded.
func (w *Writer) drain() {
	defer close(w.done)
	for record := range w.queue {
		if w.err != nil {
			continue
		}
		data, err := codec.Marshal(record)
		if err != nil {
			w.err = fmt.Errorf("trace: encoding record %d: %w", record.Sequence, err)
			continue
		}
		if _, err := w.compressed.Write(data); err != nil {
			w.err = fmt.Errorf("trace: writing record %d: %w", record.Sequence, err)
			continue
		}
		if len(w.queue) == 0 {
			if err := w.buffered.Flush(); err != nil {
				w.err = fmt.Errorf("trace: flushing: %w", err)
			}
		}
	}
}

// Record queues one signal. It implements readiness.Recorder.
func (w *Writer) Record(fd int, mask readiness.EventMask) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return
	}
	w.sequence++
	select {
	case w.queue <- Record{Sequence: w.sequence, FD: fd, Mask: mask}:
		w.queued++
	default:
		w.dropped++
	}
}

// Count returns the number of records accepted for writing.
func (w *Writer) Count() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.queued
}

// Dropped returns the number of records discarded because the writer
// goroutine had fallen behind.
func (w *Writer) Dropped() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.dropped
}

// Close stops accepting records, waits for the queued ones to be
// written, flushes the compression frame and the buffer, and closes the
// file if Create opened it. It returns the first write error. Safe to
// call more than once.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mutex.Lock()
		w.closed = true
		close(w.queue)
		w.mutex.Unlock()
		<-w.done

		errs := []error{w.err}
		if err := w.compressed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("trace: finishing compression: %w", err))
		}
		if err := w.buffered.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("trace: flushing: %w", err))
		}
		if w.file != nil {
			if err := w.file.Close(); err != nil {
				errs = append(errs, fmt.Errorf("trace: %w", err))
			}
		}
		w.closeError = errors.Join(errs...)
	})
	return w.closeError
}

// ReadAll decodes every record from r.
func ReadAll(r io.Reader, compression Compression) ([]Record, error) {
	source, release, err := decompressor(r, compression)
	if err != nil {
		return nil, err
	}
	defer release()

	decoder := codec.NewDecoder(bufio.NewReader(source))
	var records []Record
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("trace: decoding record %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
}

// ReadFile decodes the trace at path, picking the compression from its
// extension.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	defer file.Close()
	return ReadAll(file, CompressionForPath(path))
}

// RawRecord is a decoded record together with the CBOR diagnostic
// notation of its bytes as stored.
type RawRecord struct {
	Record
	Notation string
}

// ReadRaw walks the CBOR sequence in r item by item, decoding each
// record and rendering its diagnostic notation.
func ReadRaw(r io.Reader, compression Compression) ([]RawRecord, error) {
	source, release, err := decompressor(r, compression)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("trace: reading: %w", err)
	}
	var records []RawRecord
	for len(data) > 0 {
		notation, rest, err := codec.DiagnoseFirst(data)
		if err != nil {
			return records, fmt.Errorf("trace: record %d: %w", len(records)+1, err)
		}
		raw := RawRecord{Notation: notation}
		if err := codec.Unmarshal(data[:len(data)-len(rest)], &raw.Record); err != nil {
			return records, fmt.Errorf("trace: decoding record %d: %w", len(records)+1, err)
		}
		records = append(records, raw)
		data = rest
	}
	return records, nil
}

// ReadRawFile is ReadRaw on the trace at path.
func ReadRawFile(path string) ([]RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	defer file.Close()
	return ReadRaw(file, CompressionForPath(path))
}
