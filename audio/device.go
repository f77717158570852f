package audio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

var ErrPickerAborted = errors.New("device selection aborted")

type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) render(first bool) {
	if !first {
		fmt.Printf("\x1b[%dA", len(p.devices)+2)
	}
	fmt.Print("\r\x1b[J")
	fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", d.Name)
		} else {
			fmt.Printf("    %s\r\n", d.Name)
		}
	}
}

func (p *picker) move(delta int) {
	p.cursor = min(max(p.cursor+delta, 0), len(p.devices)-1)
}

// SelectDevice lets the user pick a capture device in raw terminal mode.
// With a single device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	p.render(true)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch {
		case n == 1 && buf[0] == 13: // Enter
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case n == 1 && (buf[0] == 3 || buf[0] == 'q'): // Ctrl+C
			fmt.Print("\r\n")
			return nil, ErrPickerAborted
		case n == 1 && buf[0] == 'j', n == 3 && buf[0] == 0x1b && buf[2] == 'B':
			p.move(1)
		case n == 1 && buf[0] == 'k', n == 3 && buf[0] == 0x1b && buf[2] == 'A':
			p.move(-1)
		}
		p.render(false)
	}
}
