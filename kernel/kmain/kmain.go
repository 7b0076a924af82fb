// Package kmain contains the boot sequence of the kernel.
package kmain

import (
	"io"
	"path"

	"quados/device"
	_ "quados/device/hosttty"
	_ "quados/device/virt"
	"quados/fs"
	"quados/fs/ramfs"
	"quados/kernel"
	"quados/kernel/hal"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
	"quados/kernel/mm/heap"
	"quados/kernel/mm/pmm"
	"quados/kernel/task"
)

// DefaultInitPath is where the init program is stored when the boot command
// line does not name one.
const DefaultInitPath = "/init"

var (
	errNoMemory  = &kernel.Error{Module: "kmain", Message: "boot info does not describe any memory"}
	errNoInit    = &kernel.Error{Module: "kmain", Message: "unable to read the init program"}
	errMountRoot = &kernel.Error{Module: "kmain", Message: "unable to mount the root file system"}

	log = kfmt.Logger{Module: "kmain"}
)

// Kernel holds the subsystems brought up by Boot.
type Kernel struct {
	// Tree is the file tree with a ramfs mounted at "/".
	Tree *fs.FileTree

	// Tasks keeps track of the user programs.
	Tasks *task.Scheduler

	info  *hal.BootInfo
	pages framePages
}

// Boot brings up the memory allocators, probes the devices of the machine
// described by info and mounts the root file system. If info carries an init
// image it is stored in the file tree.
func Boot(info *hal.BootInfo) (*Kernel, *kernel.Error) {
	if info == nil || info.Memory == nil {
		return nil, errNoMemory
	}

	hal.SetBootInfo(info)
	mm.SetPhysicalMemory(info.Memory)

	var usable uintptr
	hal.VisitMemRegions(func(region mm.Region) bool {
		log.Debugf("memory region [0x%x - 0x%x)", region.Base, region.End())
		usable += region.Size
		return true
	})
	if usable == 0 {
		hal.SetBootInfo(nil)
		return nil, errNoMemory
	}

	cmdLine := hal.BootCmdLine()
	if name, ok := cmdLine["loglevel"]; ok {
		if level, valid := kfmt.ParseLevel(name); valid {
			kfmt.SetLevel(level)
		} else {
			log.Warnf("ignoring unknown log level %q", name)
		}
	}

	if err := pmm.Init(info.Memory, info.Regions, info.KernelStart, info.KernelEnd); err != nil {
		return nil, err
	}

	k := &Kernel{
		Tree:  fs.NewFileTree(),
		Tasks: task.NewScheduler(),
		info:  info,
		pages: framePages{frames: &pmm.FrameAllocator},
	}

	device.SetPageAllocator(k.pages)
	hal.DetectHardware()
	task.SetInterruptHandler(func(irq uint8) bool {
		return hal.Devices().HandleInterrupt(uint32(irq))
	})

	if err := k.Tree.Mount("/", ramfs.New(k.pages)); err != nil {
		log.Errorf("mount: %s", err.Error())
		return nil, errMountRoot
	}

	if len(info.InitImage) != 0 {
		if err := k.storeInit(info.InitImage); err != nil {
			return nil, err
		}
	}

	k.printStats()
	return k, nil
}

// InitPath returns the path of the init program inside the file tree.
func (k *Kernel) InitPath() string {
	if initPath, ok := hal.BootCmdLine()["init"]; ok && initPath != "" {
		return initPath
	}

	return DefaultInitPath
}

func (k *Kernel) storeInit(image []byte) *kernel.Error {
	err := k.Tree.MkdirAll(path.Dir(k.InitPath()))

	var h *fs.Handle
	if err == nil {
		h, err = k.Tree.OpenHandle(k.InitPath(), fs.OpenCreate|fs.OpenWriteOnly)
	}
	if err == nil {
		_, err = h.Write(image)
	}

	if err != nil {
		log.Errorf("unable to store init at %s: %s", k.InitPath(), err.Error())
		return errNoInit
	}

	return nil
}

// RunInit loads the init program from the file tree, runs it in user mode
// and returns its exit status. The task is released once it exits.
func (k *Kernel) RunInit() (int, *kernel.Error) {
	initPath := k.InitPath()

	h, err := k.Tree.OpenHandle(initPath, fs.OpenReadOnly)
	if err != nil {
		log.Errorf("open %s: %s", initPath, err.Error())
		return 0, errNoInit
	}

	image, err := io.ReadAll(h)
	if err != nil {
		log.Errorf("read %s: %s", initPath, err.Error())
		return 0, errNoInit
	}

	args := k.info.InitArgs
	if len(args) == 0 {
		args = []string{initPath}
	}

	t, kerr := task.FromELF(&pmm.FrameAllocator, image, args)
	if kerr != nil {
		return 0, kerr
	}

	id := k.Tasks.Add(t)
	defer k.Tasks.Remove(id)

	log.Infof("starting %s as task %d", initPath, id)
	code, kerr := t.IntoUser()
	if kerr != nil {
		_ = t.Release()
		return 0, kerr
	}

	log.Infof("task %d exited with status %d", id, code)
	return code, t.Release()
}

func (k *Kernel) printStats() {
	stats := heap.KernelStats()
	log.Infof("free frames: %d/%d, heap: %d/%d bytes allocated",
		pmm.FrameAllocator.FreePages(), pmm.FrameAllocator.TotalPages(), stats.Allocated, stats.Total)

	for _, drv := range hal.Devices().Drivers() {
		major, minor, patch := drv.DriverVersion()
		log.Debugf("driver %s v%d.%d.%d (%s)", drv.DriverName(), major, minor, patch, drv.DeviceType().Kind())
	}
}

// Kmain boots the machine described by info and runs its init program, if
// any, returning the exit status of init. Boot failures are unrecoverable
// and halt the machine.
func Kmain(info *hal.BootInfo) int {
	k, err := Boot(info)
	if err != nil {
		kfmt.Panic(err)
		return 1
	}

	if len(info.InitImage) == 0 {
		log.Infof("no init program supplied")
		return 0
	}

	if !task.UserModeAvailable() {
		log.Warnf("user mode execution is not available on this machine; not starting %s", k.InitPath())
		return 0
	}

	code, err := k.RunInit()
	if err != nil {
		kfmt.Panic(err)
		return 1
	}

	return code
}
