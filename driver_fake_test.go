// driver_fake_test.go: Shared test fixtures for the core package
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

// assertErrCode fails the test unless err carries the expected code.
func assertErrCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	coder, ok := err.(errors.ErrorCoder)
	if !ok {
		t.Fatalf("expected coded error with %s, got %T: %v", code, err, err)
	}
	if string(coder.ErrorCode()) != code {
		t.Errorf("expected code %s, got %s", code, coder.ErrorCode())
	}
}

// fakeDriver is an in-memory driver for exercising the core. It speaks the
// same 16-byte frame format for every data ID: 8 bytes of ID, 8 bytes of a
// per-ID counter. Failure injection flags let tests force each callback to
// error.
type fakeDriver struct {
	mu      sync.Mutex
	mode    SchedMode
	devName string
	periods []time.Duration

	failInit    bool
	failStart   bool
	failSetData bool

	setDataLog   [][]DataRq
	startCount   int
	stopCount    int
	destroyCount int
	nextCalls    map[DataID]int

	counts map[DataID]uint64
	ch     chan []byte
}

const fakeFrameSize = 16

func newFakeDriver(mode SchedMode) *fakeDriver {
	return &fakeDriver{
		mode:      mode,
		devName:   "fake-device",
		nextCalls: make(map[DataID]int),
		counts:    make(map[DataID]uint64),
	}
}

func (d *fakeDriver) Init(path string, args []InitArg) error {
	if d.failInit {
		return fmt.Errorf("init refused")
	}
	return nil
}

func (d *fakeDriver) Destroy() error {
	d.mu.Lock()
	d.destroyCount++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) DeviceName() (string, error) {
	return d.devName, nil
}

func (d *fakeDriver) DataDescs(schemas []SchemaDesc) ([]DrvDataDesc, SchedMode, error) {
	descs := make([]DrvDataDesc, len(schemas))
	for i := range schemas {
		descs[i] = DrvDataDesc{Enabled: true, Periods: d.periods}
	}
	return descs, d.mode, nil
}

func (d *fakeDriver) SetData(rqs []DataRq) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSetData {
		return fmt.Errorf("setdata refused")
	}
	d.setDataLog = append(d.setDataLog, append([]DataRq(nil), rqs...))
	return nil
}

func (d *fakeDriver) Parse(buf []byte) (int, []Record, error) {
	var recs []Record
	consumed := 0
	for len(buf)-consumed >= fakeFrameSize {
		frame := buf[consumed : consumed+fakeFrameSize]
		recs = append(recs, Record{
			DataID: DataID(binary.BigEndian.Uint64(frame[:8])),
			Data:   append([]byte(nil), frame[8:]...),
		})
		consumed += fakeFrameSize
	}
	return consumed, recs, nil
}

func (d *fakeDriver) Start() (<-chan []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStart {
		return nil, fmt.Errorf("start refused")
	}
	d.ch = make(chan []byte, 256)
	d.startCount++
	return d.ch, nil
}

func (d *fakeDriver) Next(id DataID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCalls[id]++
	frame := d.frameLocked(id)
	select {
	case d.ch <- frame:
	default:
	}
	return nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCount++
	close(d.ch)
	d.ch = nil
	return nil
}

// frameLocked builds the next frame for an ID. Caller holds mu.
func (d *fakeDriver) frameLocked(id DataID) []byte {
	frame := make([]byte, fakeFrameSize)
	binary.BigEndian.PutUint64(frame[:8], uint64(id))
	binary.BigEndian.PutUint64(frame[8:], d.counts[id])
	d.counts[id]++
	return frame
}

// inject pushes a frame for the ID straight into the source channel, the
// push-mode path.
func (d *fakeDriver) inject(id DataID) {
	d.mu.Lock()
	ch := d.ch
	frame := d.frameLocked(id)
	d.mu.Unlock()
	ch <- frame
}

// injectBytes pushes raw bytes, for partial-frame tests.
func (d *fakeDriver) injectBytes(b []byte) {
	d.mu.Lock()
	ch := d.ch
	d.mu.Unlock()
	ch <- b
}

func (d *fakeDriver) snapshot() (starts, stops int, setData [][]DataRq) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCount, d.stopCount, append([][]DataRq(nil), d.setDataLog...)
}

// The global driver table persists across tests, so every registration gets
// a unique name.
var fakeNameSeq atomic.Uint64

func registerFake(t *testing.T, d *fakeDriver) string {
	t.Helper()
	return registerDriverFixture(t, d)
}

// registerDriverFixture installs any Driver under a fresh unique name, for
// tests that wrap fakeDriver with extra behavior.
func registerDriverFixture(t *testing.T, drv Driver) string {
	t.Helper()
	name := fmt.Sprintf("fake-%d", fakeNameSeq.Add(1))
	RegisterDriver(name, func() Driver { return drv })
	return name
}

// testSchemaYAML defines two fixed-layout descriptors (IDs 1 and 2).
const testSchemaYAML = `descriptors:
  - id: 1
    name: accel
    fields:
      - name: sample
        unit: count
        type: uint64
  - id: 2
    name: gyro
    fields:
      - name: sample
        unit: count
        type: uint64
`

func writeTestSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(testSchemaYAML), 0644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
	return path
}

// writeTestSchemaWithIDs builds a schema like testSchemaYAML but with the
// given data IDs, for tests that need a second driver with disjoint IDs.
func writeTestSchemaWithIDs(t *testing.T, ids ...DataID) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("descriptors:\n")
	for i, id := range ids {
		fmt.Fprintf(&sb, "  - id: %d\n    name: ch%d\n    fields:\n", id, i)
		sb.WriteString("      - name: sample\n        unit: count\n        type: uint64\n")
	}
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
	return path
}

// newTestHub builds a Hub with the event log disabled and registers its
// teardown.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Shutdown()
	})
	return h
}

// openFake registers and opens a fake driver, returning its driver name and
// device path.
func openFake(t *testing.T, h *Hub, d *fakeDriver) (string, string) {
	t.Helper()
	name := registerFake(t, d)
	path := fmt.Sprintf("/dev/%s", name)
	if err := h.Open(name, path, writeTestSchema(t), nil); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return name, path
}

// collector is a thread-safe record callback for tests.
type collector struct {
	mu     sync.Mutex
	recs   []Record
	seqnos []Seqno
}

func (c *collector) cb(rec *Record, seqno Seqno) {
	c.mu.Lock()
	c.recs = append(c.recs, *rec)
	c.seqnos = append(c.seqnos, seqno)
	c.mu.Unlock()
}

func (c *collector) values() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.recs))
	for i, r := range c.recs {
		out[i] = binary.BigEndian.Uint64(r.Data)
	}
	return out
}
