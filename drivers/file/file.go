// file.go: Push-mode byte-stream driver
//
// The file driver tails a file, FIFO, or character device and delivers
// whatever it reads as records of a single data ID. It is the reference
// push-mode driver: data arrives on the device's schedule, not the
// consumer's. The first schema descriptor in the schema file is the one it
// serves; its last field should be a variable-length bytes field.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package file

import (
	"os"
	"sync"

	"github.com/agilira/aether"
	"github.com/agilira/go-errors"
)

// DriverName is the name the driver registers under.
const DriverName = "file"

func init() {
	aether.RegisterDriver(DriverName, func() aether.Driver { return &Driver{} })
}

// readSize is the per-read buffer size of the tail goroutine.
const readSize = 4096

// chanDepth bounds chunks buffered between the tail goroutine and the
// consuming loop.
const chanDepth = 16

// Driver implements aether.Driver over a readable path.
type Driver struct {
	mu      sync.Mutex
	path    string
	id      aether.DataID
	f       *os.File
	ch      chan []byte
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// Init stores the path; the file is opened at Start so a missing device
// fails late enough to be retried without reopening the driver.
func (d *Driver) Init(path string, args []aether.InitArg) error {
	if len(args) != 0 {
		return errors.New(aether.ErrCodeInvalidValue, "file driver takes no init arguments")
	}
	d.mu.Lock()
	d.path = path
	d.mu.Unlock()
	return nil
}

func (d *Driver) Destroy() error {
	return nil
}

// DeviceName is empty; a plain file has no stable hardware identifier.
func (d *Driver) DeviceName() (string, error) {
	return "", nil
}

// DataDescs enables only the first descriptor, push mode.
func (d *Driver) DataDescs(schemas []aether.SchemaDesc) ([]aether.DrvDataDesc, aether.SchedMode, error) {
	if len(schemas) == 0 {
		return nil, aether.SchedModePush, errors.New(aether.ErrCodeInvalidSchema, "file driver needs at least one descriptor")
	}
	descs := make([]aether.DrvDataDesc, len(schemas))
	descs[0] = aether.DrvDataDesc{Enabled: true}

	d.mu.Lock()
	d.id = schemas[0].DataID
	d.mu.Unlock()
	return descs, aether.SchedModePush, nil
}

// SetData has nothing to prepare; the stream flows regardless of the
// requested period.
func (d *Driver) SetData(rqs []aether.DataRq) error {
	for _, rq := range rqs {
		if rq.ID != d.id {
			return errors.New(aether.ErrCodeDataIDDoesNotExist, "data ID not enabled").
				WithContext("data_id", uint64(rq.ID))
		}
	}
	return nil
}

// Parse turns each delivered chunk into one record wholesale.
func (d *Driver) Parse(buf []byte) (int, []aether.Record, error) {
	if len(buf) == 0 {
		return 0, nil, nil
	}
	rec := aether.Record{
		DataID: d.id,
		Data:   append([]byte(nil), buf...),
	}
	return len(buf), []aether.Record{rec}, nil
}

// Start opens the path and spawns the tail goroutine.
func (d *Driver) Start() (<-chan []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil, errors.New(aether.ErrCodeInvalidValue, "file driver already started")
	}

	f, err := os.Open(d.path) // #nosec G304 -- device path comes from the operator's config
	if err != nil {
		return nil, errors.Wrap(err, aether.ErrCodeIOError, "failed to open device path").
			WithContext("path", d.path)
	}

	d.f = f
	d.ch = make(chan []byte, chanDepth)
	d.stopCh = make(chan struct{})
	d.started = true

	d.wg.Add(1)
	go d.tail(f, d.ch, d.stopCh)
	return d.ch, nil
}

// tail reads chunks until EOF, error, or stop. The channel is closed on the
// way out so the consuming loop detaches cleanly.
func (d *Driver) tail(f *os.File, ch chan<- []byte, stop <-chan struct{}) {
	defer d.wg.Done()
	defer close(ch)

	for {
		buf := make([]byte, readSize)
		n, err := f.Read(buf)
		if n > 0 {
			select {
			case ch <- buf[:n]:
			case <-stop:
				return
			}
		}
		if err != nil {
			// EOF, closed out from under us during Stop, or a real I/O
			// failure. Either way the stream is over.
			return
		}
		select {
		case <-stop:
			return
		default:
		}
	}
}

// Next is invalid on a push-mode driver.
func (d *Driver) Next(id aether.DataID) error {
	return errors.New(aether.ErrCodeInvalidValue, "file driver is push mode")
}

// Stop closes the file, which unblocks the tail goroutine, and waits for it
// to exit.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errors.New(aether.ErrCodeDriverFail, "file driver not started")
	}
	close(d.stopCh)
	err := d.f.Close()
	d.started = false
	d.mu.Unlock()

	d.wg.Wait()
	if err != nil {
		return errors.Wrap(err, aether.ErrCodeIOError, "failed to close device path").
			WithContext("path", d.path)
	}
	return nil
}
