package emu

import (
	"bytes"
	"testing"

	"quados/internal/elfgen"
	"quados/kernel/task"
)

func TestIntoUser(t *testing.T) {
	defer task.SetUserRunner(nil)
	task.SetUserRunner(Run)

	specs := []struct {
		img     elfgen.Image
		expOut  string
		expCode int
	}{
		{elfgen.InitProgram(testEntry, "hello from user mode\n", 7), "hello from user mode\n", 7},
		{codeImage(0x06), "", 128 + 4},
		{codeImage(0xf4), "", 128 + 11},
		// mov eax, 0x3fff; syscall
		{codeImage(0xb8, 0xff, 0x3f, 0x00, 0x00, 0x0f, 0x05), "", 128 + 31},
	}

	for specIndex, spec := range specs {
		var out bytes.Buffer

		tsk := newTestTask(t, spec.img)
		tsk.SetConsole(&out)

		code, err := tsk.IntoUser()
		if err != nil {
			t.Errorf("[spec %d] %v", specIndex, err)
			continue
		}

		if code != spec.expCode {
			t.Errorf("[spec %d] expected exit code %d; got %d", specIndex, spec.expCode, code)
		}

		if out.String() != spec.expOut {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOut, out.String())
		}

		if err = tsk.Release(); err != nil {
			t.Errorf("[spec %d] %v", specIndex, err)
		}
	}
}
