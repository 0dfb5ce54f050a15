package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"sort"

	"github.com/amrbekhit/wvrboot"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

var commands = map[string]func(*device, []string){
	"init":      processInit,
	"metadata":  processMetadata,
	"slots":     processSlots,
	"decide":    processDecide,
	"boot":      processBoot,
	"update":    processUpdate,
	"recovery":  processRecovery,
	"provision": processProvision,
}

const appVersion = "0.1.0"

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	verbose := flag.BoolP("verbose", "v", false, "Enable verbose logging.")
	before := flag.String("before", "", "Command to run before installing firmware.")
	after := flag.String("after", "", "Command to run to restart the device once firmware has been installed.")

	// Format an empty profile in YAML format as an example.
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.Encode(deviceProfile{})
	profile := flag.String("profile", "", "Device profile yaml file. Example:\n\n"+buf.String())

	cmdList := []string{}
	for key := range commands {
		cmdList = append(cmdList, key)
	}
	sort.Strings(cmdList)
	command := flag.String("cmd", "", fmt.Sprintf("Command to run, one of: %+v\n"+
		"update takes a slot index, e.g. update 2\n"+
		"provision takes a slot index (-1 for recovery) and an image file, e.g. provision 0 firmware.bin",
		cmdList))

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	wvrboot.SetLogger(log.StandardLogger())

	if *profile == "" {
		log.Fatal("must specify a profile file")
	}
	f, err := ioutil.ReadFile(*profile)
	if err != nil {
		log.Fatalf("failed to open profile file: %v", err)
	}
	prof := new(deviceProfile)
	if err := yaml.UnmarshalStrict(f, prof); err != nil {
		log.Fatalf("failed to parse profile file: %v", err)
	}

	run, ok := commands[*command]
	if !ok {
		log.Fatalf("invalid command %q", *command)
	}

	dev := &device{profile: prof, before: *before, after: *after}
	// log.Fatal exits through the logrus exit handlers, so the device is
	// closed on every path.
	log.RegisterExitHandler(dev.Close)
	defer dev.Close()
	run(dev, flag.Args())
}

func runHook(name, command string) {
	if command == "" {
		return
	}
	log.Infof("running %s command...", name)
	cmd := exec.Command(command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.Fatalf("failed to run %s command: %v", name, err)
	}
}
