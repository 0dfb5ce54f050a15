package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/amrbekhit/wvrboot"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

func getIndex(arg string) int {
	index, err := strconv.Atoi(arg)
	if err != nil {
		log.Fatalf("invalid slot index: %v", err)
	}
	return index
}

func processInit(d *device, args []string) {
	if len(args) != 0 {
		log.Fatalf("init takes no arguments")
	}
	store := d.metadataStore()
	if _, err := store.Metadata(); err == nil {
		log.Fatalf("metadata already exists")
	}
	m := wvrboot.Metadata{WifiStartsOn: true}
	if err := store.WriteMetadata(m); err != nil {
		log.Fatalf("failed to write metadata: %v", err)
	}
	log.Infof("metadata created")
}

func processMetadata(d *device, args []string) {
	m := d.metadata()
	out, err := yaml.Marshal(m)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(string(out))
	if err := m.Validate(); err != nil {
		log.Warnf("metadata is not bootable: %v", err)
	}
}

func processSlots(d *device, args []string) {
	m := d.metadata()
	dir := wvrboot.NewSlotDirectory(m, d.storage().Sectors())
	for _, index := range append([]int{wvrboot.RecoveryIndex}, dir.Indices()...) {
		slot, err := dir.Slot(index)
		if err != nil {
			color.Red("%3d: %v", index, err)
			continue
		}
		marker := " "
		if index == m.CurrentFirmwareIndex {
			marker = "*"
		}
		fmt.Printf("%s%3d: start_block %d, length %d (%d sectors)\n",
			marker, index, slot.StartBlock, slot.Length, slot.Sectors())
	}
}

func processDecide(d *device, args []string) {
	mode, err := wvrboot.Decide(d.metadataStore(), d.pins(), wvrboot.WVRPins)
	if err != nil {
		log.Fatalf("failed to decide boot mode: %v", err)
	}
	if mode == wvrboot.RecoveryBoot {
		color.Yellow("boot mode: %v", mode)
		return
	}
	color.Green("boot mode: %v", mode)
}

func install(d *device, plan wvrboot.UpdatePlan) {
	runHook("before", d.before)
	log.Infof("installing slot %d...", plan.TargetIndex)
	if err := d.updater().Run(plan); err != nil {
		log.Fatalf("failed to install slot %d: %v", plan.TargetIndex, err)
	}
	color.Green("complete")
}

func processUpdate(d *device, args []string) {
	if len(args) != 1 {
		log.Fatalf("expected: index")
	}
	install(d, wvrboot.NormalUpdate(getIndex(args[0])))
}

func processRecovery(d *device, args []string) {
	if len(args) != 0 {
		log.Fatalf("recovery takes no arguments")
	}
	install(d, wvrboot.RecoveryUpdate())
}

func processBoot(d *device, args []string) {
	mode, err := wvrboot.Boot(wvrboot.BootConfig{
		Updater: d.updater(),
		Pins:    d.pins(),
		PinMap:  wvrboot.WVRPins,
	})
	if err != nil {
		log.Fatalf("%v boot failed: %v", mode, err)
	}
	color.Green("%v boot complete", mode)
}

func processProvision(d *device, args []string) {
	if len(args) != 2 {
		log.Fatalf("expected: index imagefile")
	}
	index := getIndex(args[0])
	if index < wvrboot.RecoveryIndex {
		log.Fatalf("invalid slot index %d", index)
	}
	if d.profile.EMMC == "" {
		log.Fatal("profile does not name an eMMC image")
	}

	f, err := os.Open(args[1])
	if err != nil {
		log.Fatalf("failed to open image: %v", err)
	}
	defer f.Close()
	image, err := wvrboot.LoadImage(f, wvrboot.FormatFromName(args[1]))
	if err != nil {
		log.Fatal(err)
	}

	w, err := os.OpenFile(d.profile.EMMC, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		log.Fatalf("failed to open eMMC image for writing: %v", err)
	}
	defer w.Close()
	slot, err := wvrboot.ProvisionSlot(w, d.slotStart(index), d.profile.Layout.SlotSectors, image)
	if err != nil {
		log.Fatalf("failed to provision slot %d: %v", index, err)
	}
	if err := w.Sync(); err != nil {
		log.Fatalf("failed to sync eMMC image: %v", err)
	}

	store := d.metadataStore()
	m, err := store.Metadata()
	if err != nil {
		log.Fatal(err)
	}
	if index == wvrboot.RecoveryIndex {
		m.RecoverySlot = slot
	} else {
		for len(m.FirmwareSlots) <= index {
			m.FirmwareSlots = append(m.FirmwareSlots, wvrboot.Slot{})
		}
		m.FirmwareSlots[index] = slot
	}
	if err := store.WriteMetadata(m); err != nil {
		log.Fatalf("failed to write metadata: %v", err)
	}
	color.Green("slot %d: start_block %d, length %d", index, slot.StartBlock, slot.Length)
}
