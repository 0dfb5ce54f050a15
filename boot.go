package wvrboot

import "fmt"

// Subsystem is a device component started during a normal boot.
type Subsystem interface {
	Name() string
	Start() error
}

// Pauser is implemented by the network server so that it can be left paused
// when the metadata record says WiFi starts off.
type Pauser interface {
	Pause()
}

// BootConfig holds everything Boot needs to bring the device up.
type BootConfig struct {
	// Updater is required; its Store also supplies the boot configuration.
	Updater *Updater
	Pins    PinReader
	PinMap  PinMap
	// Subsystems are started in order on a normal boot.
	Subsystems []Subsystem
	// Server is paused after start-up unless WiFi is configured to start on. Optional.
	Server Pauser
}

// Boot runs the device start-up sequence. It returns the boot mode taken.
// A recovery boot installs the recovery image and restarts; when that fails
// the error is returned and no subsystem is started.
func Boot(cfg BootConfig) (BootMode, error) {
	if cfg.Updater == nil || cfg.Updater.Store == nil {
		return NormalBoot, preconditionf("boot needs an updater with a metadata store")
	}
	store := cfg.Updater.Store
	mode, err := Decide(store, cfg.Pins, cfg.PinMap)
	if err != nil {
		return mode, err
	}

	if mode == RecoveryBoot {
		pkgLog.Infof("entering recovery mode")
		return mode, cfg.Updater.Run(RecoveryUpdate())
	}

	for _, s := range cfg.Subsystems {
		if err := s.Start(); err != nil {
			return mode, fmt.Errorf("failed to start %s: %v", s.Name(), err)
		}
		pkgLog.Debugf("started %s", s.Name())
	}

	if cfg.Server != nil {
		m, err := store.Metadata()
		if err != nil {
			return mode, err
		}
		if !m.WifiStartsOn {
			pkgLog.Infof("wifi starts off, pausing server")
			cfg.Server.Pause()
		}
	}
	return mode, nil
}
