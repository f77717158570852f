package meter

import (
	"context"
	"errors"
	"testing"
)

type fakeCapability struct {
	support  bool
	perm     Permission
	permErr  error
	requests int
}

func (f *fakeCapability) HasSupport() bool { return f.support }

func (f *fakeCapability) RequestPermission(context.Context) (Permission, error) {
	f.requests++
	return f.perm, f.permErr
}

func (f *fakeCapability) Open(context.Context) (Capture, error) {
	return nil, errors.New("not used")
}

func TestNegotiate(t *testing.T) {
	for _, tt := range []struct {
		name         string
		cap          *fakeCapability
		want         Mode
		wantRequests int
		wantErr      bool
	}{
		{"no support", &fakeCapability{support: false, perm: Granted}, ModeSimulated, 0, false},
		{"denied", &fakeCapability{support: true, perm: Denied}, ModeSimulated, 1, true},
		{"request error", &fakeCapability{support: true, perm: Granted, permErr: errors.New("boom")}, ModeSimulated, 1, true},
		{"granted", &fakeCapability{support: true, perm: Granted}, ModeMetering, 1, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(context.Background(), tt.cap)
			if got != tt.want {
				t.Errorf("mode = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.cap.requests != tt.wantRequests {
				t.Errorf("permission requests = %d, want %d", tt.cap.requests, tt.wantRequests)
			}
		})
	}
}

func TestNegotiateNilCapability(t *testing.T) {
	if got, _ := Negotiate(context.Background(), nil); got != ModeSimulated {
		t.Errorf("mode = %v, want simulated", got)
	}
}

func TestNegotiateIsFreshEachTime(t *testing.T) {
	c := &fakeCapability{support: true, perm: Denied}
	if got, _ := Negotiate(context.Background(), c); got != ModeSimulated {
		t.Fatalf("first = %v, want simulated", got)
	}
	c.perm = Granted
	if got, _ := Negotiate(context.Background(), c); got != ModeMetering {
		t.Fatalf("second = %v, want metering", got)
	}
}

func TestDeniedIsPermissionError(t *testing.T) {
	_, err := Negotiate(context.Background(), &fakeCapability{support: true, perm: Denied})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestModeString(t *testing.T) {
	if ModeMetering.String() != "metering" || ModeSimulated.String() != "simulated" {
		t.Errorf("unexpected mode names %q %q", ModeMetering, ModeSimulated)
	}
}

func TestWrapCapture(t *testing.T) {
	if WrapCapture("open", nil) != nil {
		t.Error("nil error should stay nil")
	}

	cause := errors.New("device busy")
	err := WrapCapture("open", cause)
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.Op != "open" || !errors.Is(err, cause) {
		t.Fatalf("WrapCapture = %#v", err)
	}

	again := WrapCapture("open", err)
	if again != err {
		t.Errorf("already wrapped error was wrapped again: %v", again)
	}
	if got, want := again.Error(), "capture open: device busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
