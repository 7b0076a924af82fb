package hal

import (
	"io"
	"reflect"
	"testing"

	"quados/device"
	"quados/kernel"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
)

type fakeDriver struct {
	device.BaseDriver

	name    string
	initErr *kernel.Error
	kind    device.Kind
	routed  map[uint32]device.Driver
	output  []byte
}

func (d *fakeDriver) DriverName() string                        { return d.name }
func (d *fakeDriver) DriverVersion() (uint16, uint16, uint16)   { return 1, 2, 3 }
func (d *fakeDriver) DriverInit(_ io.Writer) *kernel.Error      { return d.initErr }
func (d *fakeDriver) RegisterIRQ(irq uint32, drv device.Driver) { d.routed[irq] = drv }
func (d *fakeDriver) Put(c byte)                                { d.output = append(d.output, c) }
func (d *fakeDriver) Get() (byte, bool)                         { return 0, false }

func (d *fakeDriver) DeviceType() device.DeviceType {
	switch d.kind {
	case device.KindInt:
		return device.Int(d)
	case device.KindUART:
		return device.UART(d)
	default:
		return device.DeviceType{}
	}
}

func resetDevices() {
	devices = managedDevices{}
}

func TestParseCmdLine(t *testing.T) {
	specs := []struct {
		input string
		exp   map[string]string
	}{
		{"", map[string]string{}},
		{"loglevel=debug  init=/bin/init quiet", map[string]string{"loglevel": "debug", "init": "/bin/init", "quiet": "quiet"}},
		{"key=a=b", map[string]string{"key": "a=b"}},
	}

	for specIndex, spec := range specs {
		if got := ParseCmdLine(spec.input); !reflect.DeepEqual(got, spec.exp) {
			t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.exp, got)
		}
	}
}

func TestBootInfo(t *testing.T) {
	defer SetBootInfo(nil)

	if got := BootCmdLine(); len(got) != 0 {
		t.Errorf("expected empty command line without boot info; got %v", got)
	}

	info := NewHostedMachine(uintptr(8*mm.Mb), "console=virt-uart")
	SetBootInfo(info)

	if got := BootCmdLine()["console"]; got != "virt-uart" {
		t.Errorf("expected console=virt-uart; got %q", got)
	}

	if info.Memory.Base() != HostedRAMBase || info.KernelEnd != HostedRAMBase+HostedKernelSize {
		t.Errorf("unexpected hosted memory layout: base 0x%x kernel end 0x%x", info.Memory.Base(), info.KernelEnd)
	}

	var visited []mm.Region
	VisitMemRegions(func(region mm.Region) bool {
		visited = append(visited, region)
		return true
	})

	if len(visited) != 1 || visited[0].Base != HostedRAMBase || visited[0].Size != uintptr(8*mm.Mb) {
		t.Errorf("unexpected memory regions: %+v", visited)
	}

	info.Regions = append(info.Regions, mm.Region{Base: 0x1000, Size: 0x1000})
	var count int
	VisitMemRegions(func(mm.Region) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("expected visitor to abort the scan; got %d visits", count)
	}
}

func TestDetectHardwareTwice(t *testing.T) {
	defer func() {
		resetDevices()
		SetBootInfo(nil)
	}()

	SetBootInfo(&BootInfo{Devices: []device.Node{
		{Compatible: "acme,widget", Base: 0x1000},
		{Compatible: "acme,gadget", Base: 0x2000},
	}})

	var counts []int
	for i := 0; i < 2; i++ {
		DetectHardware()

		unsupported := 0
		for _, drv := range Devices().Drivers() {
			if _, ok := drv.(*device.UnsupportedDriver); ok {
				unsupported++
			}
		}
		counts = append(counts, unsupported)
	}

	if counts[0] != 2 || counts[1] != 2 {
		t.Errorf("expected each detection to record 2 unsupported devices; got %v", counts)
	}
}

func TestProbe(t *testing.T) {
	defer func() {
		resetDevices()
		setOutputSinkFn = kfmt.SetOutputSink
		SetBootInfo(nil)
	}()
	resetDevices()

	var sink io.Writer
	setOutputSinkFn = func(w io.Writer) { sink = w }
	SetBootInfo(&BootInfo{CmdLine: "console=uart1"})

	intc := &fakeDriver{name: "intc", kind: device.KindInt, routed: make(map[uint32]device.Driver)}
	uart0 := &fakeDriver{name: "uart0", kind: device.KindUART, BaseDriver: device.BaseDriver{IRQs: []uint32{4}}}
	uart1 := &fakeDriver{name: "uart1", kind: device.KindUART, BaseDriver: device.BaseDriver{IRQs: []uint32{5}}}
	broken := &fakeDriver{name: "broken", initErr: &kernel.Error{Module: "test", Message: "init failed"}}

	uarts := []*fakeDriver{uart0, uart1}
	list := device.DriverInfoList{
		{Order: device.DetectOrderInterruptController, Compatible: "test,intc", Probe: func(device.Node) device.Driver { return intc }},
		{Order: device.DetectOrderDevice, Compatible: "test,uart", Probe: func(device.Node) device.Driver {
			drv := uarts[0]
			uarts = uarts[1:]
			return drv
		}},
		{Order: device.DetectOrderDevice, Compatible: "test,broken", Probe: func(device.Node) device.Driver { return broken }},
		{Order: device.DetectOrderDevice, Compatible: "test,absent", Probe: func(device.Node) device.Driver { return nil }},
	}

	nodes := []device.Node{
		{Compatible: "test,intc"},
		{Compatible: "test,uart", IRQs: []uint32{4}},
		{Compatible: "test,uart", IRQs: []uint32{5}},
		{Compatible: "test,broken", IRQs: []uint32{6}},
		{Compatible: "test,absent", IRQs: []uint32{7}},
		{Compatible: "test,unknown"},
	}

	probe(list, nodes)
	routeInterrupts()

	drivers := Devices().Drivers()
	if len(drivers) != 6 {
		t.Fatalf("expected 3 drivers and 3 placeholders; got %d entries", len(drivers))
	}

	var unsupported []string
	for _, drv := range drivers {
		if placeholder, ok := drv.(*device.UnsupportedDriver); ok {
			unsupported = append(unsupported, placeholder.Node.Compatible)
			if placeholder.DeviceType().Kind() != device.KindNone {
				t.Error("expected placeholder to report no device kind")
			}
		}
	}

	if exp := []string{"test,broken", "test,absent", "test,unknown"}; !reflect.DeepEqual(unsupported, exp) {
		t.Errorf("expected placeholders for %v; got %v", exp, unsupported)
	}

	if ActiveUART() != uart1 {
		t.Error("expected the UART selected on the command line to become the console")
	}

	if w, ok := sink.(device.UARTWriter); !ok || w.UART != uart1 {
		t.Errorf("expected console output to be redirected to uart1; got %v", sink)
	}

	if len(intc.routed) != 2 || intc.routed[4] != uart0 || intc.routed[5] != uart1 {
		t.Errorf("expected UART interrupts to be routed through the controller; got %v", intc.routed)
	}
}
