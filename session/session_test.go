package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/logcollector"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/transport/wsbus"
)

func newTestBus(t *testing.T) *wsbus.Bus {
	t.Helper()
	srv := httptest.NewServer(nil)
	t.Cleanup(srv.Close)
	wsAddr := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	bus := wsbus.New(wsAddr)
	mux := http.NewServeMux()
	bus.RegisterHandlers(mux)
	srv.Config.Handler = mux
	return bus
}

func TestOpenStartsNotificationsAndRegisters(t *testing.T) {
	bus := newTestBus(t)
	fake := device.NewFake(device.Identity{Serial: "T1"}, device.Capabilities{})
	before := Count()

	s, err := Open(fake, bus, logcollector.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Count() != before+1 {
		t.Fatalf("want session registered, count=%d", Count())
	}

	fake.InjectNotification(recordtypes.Notification{SystemTS: 1, Text: "hello"})
	if s.Dispatcher.NotificationBuffer().Len() != 1 {
		t.Fatalf("want notification appended, got len=%d", s.Dispatcher.NotificationBuffer().Len())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Count() != before {
		t.Fatalf("want session unregistered after close, count=%d", Count())
	}
}

func TestCloseLeavesCalibrationIfEntered(t *testing.T) {
	bus := newTestBus(t)
	fake := device.NewFake(device.Identity{Serial: "T2"}, device.Capabilities{})

	s, err := Open(fake, bus, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.EnterCalibration(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.CalibrationEntered() {
		t.Fatalf("want calibration entered on the device")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.CalibrationEntered() {
		t.Fatalf("want calibration left after session close")
	}
}

func TestEnterCalibrationTwiceIsRejected(t *testing.T) {
	bus := newTestBus(t)
	fake := device.NewFake(device.Identity{Serial: "T3"}, device.Capabilities{})
	s, err := Open(fake, bus, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if _, err := s.EnterCalibration(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.EnterCalibration(false); err == nil {
		t.Fatal("want error entering calibration twice on the same session")
	}
}

func TestSetDeviceNameRereadsIdentity(t *testing.T) {
	bus := newTestBus(t)
	fake := device.NewFake(device.Identity{Serial: "T4", Name: "old"}, device.Capabilities{})
	s, err := Open(fake, bus, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if err := s.SetDeviceName("new-name"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Identity().Name != "new-name" {
		t.Fatalf("want identity refreshed, got %q", s.Identity().Name)
	}
}
