// Package display prints one block per measurement cycle to a console
// writer: stdout or a UART.
package display

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/iaq"
)

const (
	separator  = "--------------------------------------------------"
	timeLayout = "2006-01-02 15:04:05"
)

// Frame is everything shown for one cycle.
type Frame struct {
	Time    time.Time
	Reading bme680.Reading
	// Valid is false when the cycle produced no reading.
	Valid bool
	IAQ   *float64

	// Offline is set when no network is configured.
	Offline   bool
	LinkUp    bool
	Reconnect time.Duration // until the next link attempt when down
	// Sent is set when the uplink ran this cycle.
	Sent     *bool
	NextSend time.Duration
}

// Console renders frames to a writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Banner prints the start-up header.
func (c *Console) Banner(title string, lines ...string) error {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", len(separator)) + "\n")
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(separator)) + "\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	return c.write(b.String())
}

// Render prints f as one block.
func (c *Console) Render(f Frame) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", f.Time.Format(timeLayout))

	if !f.Valid {
		b.WriteString("  Sensor:       no reading this cycle\n")
	} else {
		r := f.Reading
		fmt.Fprintf(&b, "  Temperature:  %.1f °C\n", r.Temperature)
		fmt.Fprintf(&b, "  Humidity:     %.1f %%RH\n", r.Humidity)
		fmt.Fprintf(&b, "  Pressure:     %.1f hPa\n", r.Pressure)
		if r.HasGas {
			fmt.Fprintf(&b, "  Gas:          %.0f Ω\n", r.GasResistance)
			if f.IAQ != nil {
				fmt.Fprintf(&b, "  IAQ:          %.0f\n", *f.IAQ)
				fmt.Fprintf(&b, "  Air quality:  %s\n", iaq.Category(*f.IAQ))
			}
		} else {
			b.WriteString("  Gas:          measuring...\n")
			if r.HeaterStable {
				b.WriteString("  Heater:       stable\n")
			} else {
				b.WriteString("  Heater:       warming up\n")
			}
		}
	}

	switch {
	case f.Offline:
		b.WriteString("  -> offline, local measurement only\n")
	case !f.LinkUp:
		fmt.Fprintf(&b, "  -> link down, reconnect in %s\n", seconds(f.Reconnect))
	case f.Sent != nil && *f.Sent:
		fmt.Fprintf(&b, "  -> sent, next send in %s\n", seconds(f.NextSend))
	case f.Sent != nil:
		fmt.Fprintf(&b, "  -> send failed, retry in %s\n", seconds(f.NextSend))
	default:
		fmt.Fprintf(&b, "  -> next send in %s\n", seconds(f.NextSend))
	}
	b.WriteString(separator + "\n")

	return c.write(b.String())
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bw := bufio.NewWriter(c.w)
	if _, err := bw.WriteString(s); err != nil {
		return err
	}
	return bw.Flush()
}

func seconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
}
