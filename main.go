// Command quados boots the kernel on a hosted machine: RAM is an arena in
// this process and the devices are simulated. The exit status of the first
// user program becomes the exit status of the process.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"quados/device"
	"quados/kernel/cpu/emu"
	"quados/kernel/hal"
	"quados/kernel/kfmt"
	"quados/kernel/kmain"
	"quados/kernel/mm"
	"quados/kernel/task"
)

var (
	memSize  = flag.Uint("mem", 64, "machine RAM in megabytes")
	cmdLine  = flag.String("cmdline", "", "kernel command line")
	initFile = flag.String("init", "", "host path of the ELF image to run as the first user program")
	ttyPath  = flag.String("tty", "", "host terminal to use as the console; \"self\" selects the controlling terminal")
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[quados] error: %s\n", err.Error())
	os.Exit(1)
}

// bootInfo describes the hosted machine selected by the command line flags.
func bootInfo() (*hal.BootInfo, error) {
	args := *cmdLine
	if _, set := hal.ParseCmdLine(args)["console"]; !set && *ttyPath != "" {
		args = strings.TrimSpace(args + " console=hosttty")
	}
	if *ttyPath != "" && *ttyPath != "self" {
		args += " tty=" + *ttyPath
	}

	info := hal.NewHostedMachine(uintptr(*memSize)*uintptr(mm.Mb), args)
	if *ttyPath != "" {
		info.Devices = append(info.Devices, device.Node{
			Compatible: hal.CompatibleHostTTY,
			Base:       0x1000_4000,
			IRQs:       []uint32{4},
		})
	}

	if *initFile != "" {
		image, err := os.ReadFile(*initFile)
		if err != nil {
			return nil, err
		}
		info.InitImage = image
		info.InitArgs = append([]string{initPathFor(args)}, flag.Args()...)
	}

	return info, nil
}

// initPathFor returns the path init is stored under in the file tree.
func initPathFor(args string) string {
	if p := hal.ParseCmdLine(args)["init"]; p != "" {
		return p
	}
	return kmain.DefaultInitPath
}

func main() {
	flag.Parse()

	info, err := bootInfo()
	if err != nil {
		exit(err)
	}

	// Until a console driver attaches, kernel output goes to stdout.
	kfmt.SetOutputSink(os.Stdout)
	task.SetUserRunner(emu.Run)
	os.Exit(kmain.Kmain(info))
}
