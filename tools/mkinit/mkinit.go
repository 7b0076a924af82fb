// Command mkinit writes a minimal static x86-64 ELF executable that prints a
// message and exits. Its output can be handed to the hosted kernel as the
// init program.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"quados/internal/elfgen"
)

var (
	output = flag.String("out", "-", "output file; - writes to stdout")
	msg    = flag.String("msg", "hello from init\n", "message written to stdout")
	status = flag.Uint("status", 0, "exit status")
	entry  = flag.Uint64("entry", 0x400000, "virtual address of the first instruction")
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkinit] error: %s\n", err.Error())
	os.Exit(1)
}

func runTool() error {
	flag.Parse()
	if *status > 255 {
		return errors.New("exit status must be in the range [0, 255]")
	}
	if *entry%0x1000 != 0 {
		return errors.New("entry address must be page aligned")
	}

	img := elfgen.InitProgram(*entry, *msg, uint32(*status)).Bytes()

	switch *output {
	case "-":
		_, err := os.Stdout.Write(img)
		return err
	default:
		return os.WriteFile(*output, img, 0o755)
	}
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
