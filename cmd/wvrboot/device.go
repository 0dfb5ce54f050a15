package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amrbekhit/wvrboot"
	log "github.com/sirupsen/logrus"
)

// deviceProfile describes where the pieces of a device live on the host.
type deviceProfile struct {
	// EMMC is a raw eMMC dump or block device.
	EMMC string `yaml:"emmc"`
	// Metadata is the metadata record, YAML unless the name ends in .db.
	Metadata string `yaml:"metadata"`
	Flash    struct {
		// Dir holds app0.bin, app1.bin and otadata.yaml.
		Dir           string `yaml:"dir"`
		PartitionSize int    `yaml:"partition_size"`
		// Port selects a serially attached device instead of Dir.
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"flash"`
	Layout struct {
		// FirstBlock is where the recovery slot starts.
		FirstBlock int `yaml:"first_block"`
		// SlotSectors is the number of sectors reserved for each slot.
		SlotSectors int `yaml:"slot_sectors"`
	} `yaml:"layout"`
	Pins struct {
		// Sysfs is the sysfs gpio directory of a test rig. When empty the
		// levels below are used.
		Sysfs  string      `yaml:"sysfs"`
		Levels map[int]int `yaml:"levels"`
	} `yaml:"pins"`
}

// device opens the parts of a device on first use.
type device struct {
	profile *deviceProfile
	before  string
	after   string

	store  wvrboot.MetadataStore
	closer func() error
	emmc   *wvrboot.EMMCImage
	serial *wvrboot.SerialProgrammer
}

func (d *device) Close() {
	if d.closer != nil {
		if err := d.closer(); err != nil {
			log.Warnf("failed to close metadata store: %v", err)
		}
		d.closer = nil
	}
	if d.emmc != nil {
		if err := d.emmc.Close(); err != nil {
			log.Warnf("failed to close eMMC image: %v", err)
		}
		d.emmc = nil
	}
	if d.serial != nil {
		d.serial.Close()
		d.serial = nil
	}
}

func (d *device) metadataStore() wvrboot.MetadataStore {
	if d.store != nil {
		return d.store
	}
	path := d.profile.Metadata
	if path == "" {
		log.Fatal("profile does not name a metadata store")
	}
	if strings.EqualFold(filepath.Ext(path), ".db") {
		s, err := wvrboot.OpenBoltMetadataStore(path)
		if err != nil {
			log.Fatal(err)
		}
		d.store, d.closer = s, s.Close
	} else {
		d.store = wvrboot.NewFileMetadataStore(path)
	}
	return d.store
}

func (d *device) metadata() wvrboot.Metadata {
	m, err := d.metadataStore().Metadata()
	if err != nil {
		log.Fatal(err)
	}
	return m
}

func (d *device) storage() *wvrboot.EMMCImage {
	if d.emmc != nil {
		return d.emmc
	}
	if d.profile.EMMC == "" {
		log.Fatal("profile does not name an eMMC image")
	}
	e, err := wvrboot.OpenEMMCImage(d.profile.EMMC)
	if err != nil {
		log.Fatal(err)
	}
	d.emmc = e
	return e
}

func (d *device) programmer() wvrboot.FlashProgrammer {
	fl := d.profile.Flash
	switch {
	case fl.Port != "":
		baud := fl.Baud
		if baud == 0 {
			baud = 115200
		}
		p := wvrboot.NewSerialProgrammer(fl.Port, baud)
		log.Infof("connecting to device...")
		if err := p.Connect(); err != nil {
			log.Fatal(err)
		}
		d.serial = p
		return p
	case fl.Dir != "":
		if fl.PartitionSize <= 0 {
			log.Fatal("profile must set flash partition_size")
		}
		return wvrboot.NewPartitionProgrammer(fl.Dir, fl.PartitionSize)
	default:
		log.Fatal("profile does not name a flash target")
	}
	return nil
}

func (d *device) pins() wvrboot.PinReader {
	if d.profile.Pins.Sysfs != "" {
		return wvrboot.SysfsPins{Root: d.profile.Pins.Sysfs}
	}
	return wvrboot.StaticPins(d.profile.Pins.Levels)
}

// slotStart returns the block where the slot with the given index is laid out.
func (d *device) slotStart(index int) int {
	l := d.profile.Layout
	return l.FirstBlock + (index+1)*l.SlotSectors
}

func (d *device) updater() *wvrboot.Updater {
	storage := d.storage()
	dots := 0
	return &wvrboot.Updater{
		Storage:      storage,
		Programmer:   d.programmer(),
		Store:        d.metadataStore(),
		TotalSectors: storage.Sectors(),
		Restarter: wvrboot.RestarterFunc(func() {
			fmt.Println()
			runHook("after", d.after)
		}),
		Progress: func(written, total int) {
			if log.IsLevelEnabled(log.DebugLevel) {
				return
			}
			fmt.Print(".")
			dots++
			if dots%64 == 0 {
				fmt.Printf(" %d/%d\n", written, total)
			}
		},
	}
}
