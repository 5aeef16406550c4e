package link

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	wpaService   = "fi.w1.wpa_supplicant1"
	wpaPath      = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	wpaIface     = wpaService + ".Interface"
	wpaBSS       = wpaService + ".BSS"
	propertyGet  = "org.freedesktop.DBus.Properties.Get"
	scanPoll     = 250 * time.Millisecond
	defScanLimit = 10 * time.Second

	// DefaultCallTimeout bounds every D-Bus round trip. It stays below
	// watchdog.DefaultMargin.
	DefaultCallTimeout = time.Second
)

// Ensure Supplicant implements Radio.
var _ Radio = (*Supplicant)(nil)

// SleepFunc pauses for d. The watchdog keeper's Sleep fits.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Supplicant drives wpa_supplicant over the system D-Bus.
type Supplicant struct {
	iface       dbus.BusObject
	bss         func(dbus.ObjectPath) dbus.BusObject
	ifname      string
	sleep       SleepFunc
	scanLimit   time.Duration
	callTimeout time.Duration
	network     dbus.ObjectPath
}

// NewSupplicant attaches to the wpa_supplicant interface ifname. sleep is
// used while waiting for scan results. Each D-Bus call is abandoned after
// callTimeout; zero uses DefaultCallTimeout.
func NewSupplicant(ifname string, sleep SleepFunc, callTimeout time.Duration) (*Supplicant, error) {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to system bus")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var path dbus.ObjectPath
	err = conn.Object(wpaService, wpaPath).CallWithContext(ctx, wpaService+".GetInterface", 0, ifname).Store(&path)
	if err != nil {
		return nil, errors.Wrapf(err, "wpa_supplicant has no interface %s", ifname)
	}
	log.Debugf("wpa_supplicant interface %s at %s", ifname, path)

	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}

	return &Supplicant{
		iface:       conn.Object(wpaService, path),
		bss:         func(p dbus.ObjectPath) dbus.BusObject { return conn.Object(wpaService, p) },
		ifname:      ifname,
		sleep:       sleep,
		scanLimit:   defScanLimit,
		callTimeout: callTimeout,
	}, nil
}

// call invokes method on obj with the per-call deadline.
func (s *Supplicant) call(ctx context.Context, obj dbus.BusObject, method string, args ...interface{}) *dbus.Call {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return obj.CallWithContext(ctx, method, 0, args...)
}

// property reads iface.name from obj with the per-call deadline.
func (s *Supplicant) property(ctx context.Context, obj dbus.BusObject, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := s.call(ctx, obj, propertyGet, iface, name).Store(&v)
	return v, err
}

// Scan requests an active scan and returns the SSIDs of the resulting BSS list.
func (s *Supplicant) Scan(ctx context.Context) ([]string, error) {
	args := map[string]dbus.Variant{"Type": dbus.MakeVariant("active")}
	if call := s.call(ctx, s.iface, wpaIface+".Scan", args); call.Err != nil {
		return nil, errors.Wrap(call.Err, "scan request")
	}

	for waited := time.Duration(0); waited < s.scanLimit; waited += scanPoll {
		v, err := s.property(ctx, s.iface, wpaIface, "Scanning")
		if err != nil {
			return nil, errors.Wrap(err, "scan state")
		}
		if scanning, _ := v.Value().(bool); !scanning {
			break
		}
		if err := s.sleep(ctx, scanPoll); err != nil {
			return nil, err
		}
	}

	v, err := s.property(ctx, s.iface, wpaIface, "BSSs")
	if err != nil {
		return nil, errors.Wrap(err, "scan results")
	}

	var raw [][]byte
	for _, p := range bssPaths(v) {
		sv, err := s.property(ctx, s.bss(p), wpaBSS, "SSID")
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, errors.Wrap(err, "scan results")
			}
			// BSS entries expire while we iterate.
			continue
		}
		b, _ := sv.Value().([]byte)
		raw = append(raw, b)
	}
	return uniqueSSIDs(raw), nil
}

// bssPaths extracts the object paths of a BSSs property value.
func bssPaths(v dbus.Variant) []dbus.ObjectPath {
	paths, _ := v.Value().([]dbus.ObjectPath)
	return paths
}

// uniqueSSIDs drops hidden networks and repeated access points of the same
// network, keeping first-seen order.
func uniqueSSIDs(raw [][]byte) []string {
	seen := map[string]bool{}
	ssids := make([]string, 0, len(raw))
	for _, b := range raw {
		if ssid := string(b); ssid != "" && !seen[ssid] {
			seen[ssid] = true
			ssids = append(ssids, ssid)
		}
	}
	return ssids
}

// Join replaces the configured network with ssid and selects it.
func (s *Supplicant) Join(ctx context.Context, ssid, password string) error {
	if call := s.call(ctx, s.iface, wpaIface+".RemoveAllNetworks"); call.Err != nil {
		return errors.Wrap(call.Err, "remove networks")
	}
	s.network = ""

	params := map[string]dbus.Variant{"ssid": dbus.MakeVariant(ssid)}
	if password != "" {
		params["psk"] = dbus.MakeVariant(password)
	} else {
		params["key_mgmt"] = dbus.MakeVariant("NONE")
	}

	var network dbus.ObjectPath
	if err := s.call(ctx, s.iface, wpaIface+".AddNetwork", params).Store(&network); err != nil {
		return errors.Wrapf(err, "add network %q", ssid)
	}
	if call := s.call(ctx, s.iface, wpaIface+".SelectNetwork", network); call.Err != nil {
		return errors.Wrapf(call.Err, "select network %q", ssid)
	}
	s.network = network
	return nil
}

// IsConnected reports whether the interface state is "completed".
func (s *Supplicant) IsConnected() (bool, error) {
	v, err := s.property(context.Background(), s.iface, wpaIface, "State")
	if err != nil {
		return false, errors.Wrap(err, "interface state")
	}
	return completed(v), nil
}

// completed reports whether a State property value means associated.
func completed(v dbus.Variant) bool {
	state, _ := v.Value().(string)
	return state == "completed"
}

// Leave disconnects and removes the selected network.
func (s *Supplicant) Leave() error {
	if call := s.call(context.Background(), s.iface, wpaIface+".Disconnect"); call.Err != nil {
		log.Debugf("wpa_supplicant disconnect: %v", call.Err)
	}
	if s.network == "" {
		return nil
	}
	err := s.call(context.Background(), s.iface, wpaIface+".RemoveNetwork", s.network).Err
	s.network = ""
	return errors.Wrap(err, "remove network")
}

// Close leaves the network. The shared system bus connection stays open.
func (s *Supplicant) Close() error {
	return s.Leave()
}
