package device

// UARTWriter is an io.Writer that transmits everything written to it
// through a serial port.
type UARTWriter struct {
	UART UartDriver
}

// Write implements io.Writer. Line feeds are expanded to CR/LF.
func (w UARTWriter) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			w.UART.Put('\r')
		}
		w.UART.Put(c)
	}

	return len(p), nil
}
