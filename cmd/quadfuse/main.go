//go:build linux

// Command quadfuse boots the kernel core on a hosted machine and exports its
// file tree to the host through FUSE until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quados/fs/fusefs"
	"quados/kernel/hal"
	"quados/kernel/kfmt"
	"quados/kernel/kmain"
	"quados/kernel/mm"
)

var (
	memSize  = flag.Uint("mem", 64, "machine RAM in megabytes")
	cmdLine  = flag.String("cmdline", "loglevel=info", "kernel command line")
	initFile = flag.String("init", "", "host path of an ELF image to store in the file tree as init")
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[quadfuse] error: %s\n", err.Error())
	os.Exit(1)
}

func runTool() error {
	flag.Parse()
	if flag.NArg() != 1 {
		return errors.New("usage: quadfuse [flags] mountpoint")
	}

	info := hal.NewHostedMachine(uintptr(*memSize)*uintptr(mm.Mb), *cmdLine)
	if *initFile != "" {
		image, err := os.ReadFile(*initFile)
		if err != nil {
			return err
		}
		info.InitImage = image
	}

	kfmt.SetOutputSink(os.Stderr)
	k, kerr := kmain.Boot(info)
	if kerr != nil {
		return kerr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fusefs.Serve(ctx, k.Tree, flag.Arg(0))
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
