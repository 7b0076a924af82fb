package device

// Kind identifies the category of a device.
type Kind uint8

// The supported device categories.
const (
	KindNone Kind = iota
	KindRTC
	KindBlock
	KindNet
	KindInput
	KindInt
	KindUART
)

var kindNames = [...]string{"none", "rtc", "block", "net", "input", "int", "uart"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "unknown"
}

// DeviceType is a tagged handle to the category-specific interface of a
// driver. The zero value describes a driver without a supported category.
type DeviceType struct {
	kind Kind
	drv  Driver
}

// RTC tags drv as a real time clock.
func RTC(drv RtcDriver) DeviceType { return DeviceType{kind: KindRTC, drv: drv} }

// Block tags drv as a block device.
func Block(drv BlkDriver) DeviceType { return DeviceType{kind: KindBlock, drv: drv} }

// Net tags drv as a network interface.
func Net(drv NetDriver) DeviceType { return DeviceType{kind: KindNet, drv: drv} }

// Input tags drv as an input device.
func Input(drv InputDriver) DeviceType { return DeviceType{kind: KindInput, drv: drv} }

// Int tags drv as an interrupt controller.
func Int(drv IntDriver) DeviceType { return DeviceType{kind: KindInt, drv: drv} }

// UART tags drv as a serial port.
func UART(drv UartDriver) DeviceType { return DeviceType{kind: KindUART, drv: drv} }

// Kind returns the device category.
func (t DeviceType) Kind() Kind { return t.kind }

// RTC returns the real time clock handle.
func (t DeviceType) RTC() (RtcDriver, bool) {
	if t.kind != KindRTC {
		return nil, false
	}
	drv, ok := t.drv.(RtcDriver)
	return drv, ok
}

// Block returns the block device handle.
func (t DeviceType) Block() (BlkDriver, bool) {
	if t.kind != KindBlock {
		return nil, false
	}
	drv, ok := t.drv.(BlkDriver)
	return drv, ok
}

// Net returns the network interface handle.
func (t DeviceType) Net() (NetDriver, bool) {
	if t.kind != KindNet {
		return nil, false
	}
	drv, ok := t.drv.(NetDriver)
	return drv, ok
}

// Input returns the input device handle.
func (t DeviceType) Input() (InputDriver, bool) {
	if t.kind != KindInput {
		return nil, false
	}
	drv, ok := t.drv.(InputDriver)
	return drv, ok
}

// Int returns the interrupt controller handle.
func (t DeviceType) Int() (IntDriver, bool) {
	if t.kind != KindInt {
		return nil, false
	}
	drv, ok := t.drv.(IntDriver)
	return drv, ok
}

// UART returns the serial port handle.
func (t DeviceType) UART() (UartDriver, bool) {
	if t.kind != KindUART {
		return nil, false
	}
	drv, ok := t.drv.(UartDriver)
	return drv, ok
}
