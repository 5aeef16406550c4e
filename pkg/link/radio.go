package link

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Radio is the station-mode Wi-Fi interface.
type Radio interface {
	// Scan returns the SSIDs currently visible.
	Scan(ctx context.Context) ([]string, error)
	// Join starts association with ssid. It does not wait for completion.
	Join(ctx context.Context, ssid, password string) error
	// IsConnected reports whether association has completed.
	IsConnected() (bool, error)
	// Leave drops the current association.
	Leave() error
}

// Ensure MockRadio implements Radio.
var _ Radio = (*MockRadio)(nil)

// MockRadio is an in-memory Radio.
type MockRadio struct {
	mu sync.Mutex

	visible []string
	// polls needed before a join completes, per SSID; missing means never
	delay map[string]int

	current   string
	pending   int
	connected bool
	joins     []string
	leaves    int
	scans     int
	scanErr   error
}

// NewMockRadio creates a radio that sees visible.
func NewMockRadio(visible ...string) *MockRadio {
	return &MockRadio{
		visible: visible,
		delay:   map[string]int{},
	}
}

// Accept makes joins to ssid complete after polls IsConnected calls.
func (m *MockRadio) Accept(ssid string, polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[ssid] = polls
}

// SetVisible replaces the scan result.
func (m *MockRadio) SetVisible(ssids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = ssids
}

// SetScanError makes Scan fail with err.
func (m *MockRadio) SetScanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

// Drop simulates losing the access point.
func (m *MockRadio) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.current = ""
}

func (m *MockRadio) Scan(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return append([]string(nil), m.visible...), ctx.Err()
}

func (m *MockRadio) Join(ctx context.Context, ssid, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, ssid)
	found := false
	for _, v := range m.visible {
		if v == ssid {
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("mock radio: %q not in range", ssid)
	}
	m.current = ssid
	m.connected = false
	if polls, ok := m.delay[ssid]; ok {
		m.pending = polls
	} else {
		m.pending = -1
	}
	return nil
}

func (m *MockRadio) IsConnected() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected || m.current == "" || m.pending < 0 {
		return m.connected, nil
	}
	if m.pending == 0 {
		m.connected = true
		return true, nil
	}
	m.pending--
	return false, nil
}

func (m *MockRadio) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	m.connected = false
	m.current = ""
	return nil
}

// Joins returns the SSIDs Join was called with.
func (m *MockRadio) Joins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joins...)
}

// Leaves returns how often Leave was called.
func (m *MockRadio) Leaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaves
}

// Scans returns how often Scan was called.
func (m *MockRadio) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}
