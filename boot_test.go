package wvrboot

import (
	"errors"
	"testing"
)

type mockSubsystem struct {
	name string
	log  *events
	err  error
}

func (s *mockSubsystem) Name() string { return s.name }

func (s *mockSubsystem) Start() error {
	s.log.add("start %s", s.name)
	return s.err
}

type mockServer struct {
	log *events
}

func (s *mockServer) Pause() { s.log.add("pause") }

func bootFixture(t *testing.T, m func(*Metadata), level int) (*fixture, BootConfig) {
	f := newFixture(t, []Slot{{StartBlock: 100, Length: 600}}, Slot{StartBlock: 8, Length: 700})
	rec, _ := f.store.Metadata()
	m(&rec)
	f.store.MemoryMetadataStore = NewMemoryMetadataStore(rec)

	var subsystems []Subsystem
	for _, name := range []string{"dac", "midi", "server"} {
		subsystems = append(subsystems, &mockSubsystem{name: name, log: &f.log})
	}
	return f, BootConfig{
		Updater:    f.updater,
		Pins:       StaticPins{WVRPins[0]: level},
		PinMap:     WVRPins,
		Subsystems: subsystems,
		Server:     &mockServer{log: &f.log},
	}
}

func TestBootNormal(t *testing.T) {
	f, cfg := bootFixture(t, func(m *Metadata) { m.WifiStartsOn = true }, 1)
	mode, err := Boot(cfg)
	if err != nil || mode != NormalBoot {
		t.Fatalf("got %v, %v", mode, err)
	}
	expected := events{"start dac", "start midi", "start server"}
	if len(f.log) != len(expected) || f.log[2] != expected[2] {
		t.Errorf("got calls %v, expected %v", f.log, expected)
	}
}

func TestBootWifiOff(t *testing.T) {
	f, cfg := bootFixture(t, func(m *Metadata) { m.WifiStartsOn = false }, 1)
	if _, err := Boot(cfg); err != nil {
		t.Fatal(err)
	}
	if len(f.log) != 4 || f.log[3] != "pause" {
		t.Errorf("server not paused last: %v", f.log)
	}
}

func TestBootRecovery(t *testing.T) {
	f, cfg := bootFixture(t, func(m *Metadata) {
		m.ShouldCheckStrappingPin = true
		m.RecoveryModeStrappingPin = 0
	}, 0)
	mode, err := Boot(cfg)
	if err != nil || mode != RecoveryBoot {
		t.Fatalf("got %v, %v", mode, err)
	}
	for _, e := range f.log {
		if e == "start dac" {
			t.Fatal("subsystems started on recovery boot")
		}
	}
	if f.restarts != 1 {
		t.Errorf("restarted %d times", f.restarts)
	}
	if m := f.metadata(t); m.CurrentFirmwareIndex != RecoveryIndex {
		t.Errorf("recovery not recorded: %+v", m)
	}
}

func TestBootSubsystemFailure(t *testing.T) {
	f, cfg := bootFixture(t, func(m *Metadata) {}, 1)
	failure := errors.New("no codec")
	cfg.Subsystems[1].(*mockSubsystem).err = failure
	if _, err := Boot(cfg); err == nil {
		t.Fatal("expected an error")
	}
	if len(f.log) != 2 {
		t.Errorf("bring-up continued after failure: %v", f.log)
	}
}

func TestBootWithoutUpdater(t *testing.T) {
	var perr *PreconditionError
	if _, err := Boot(BootConfig{Pins: StaticPins{}, PinMap: WVRPins}); !errors.As(err, &perr) {
		t.Errorf("expected PreconditionError, got %v", err)
	}
}
