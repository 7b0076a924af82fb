package kernel

import "testing"

func TestMemset(t *testing.T) {
	for pageCount := 1; pageCount <= 10; pageCount++ {
		buf := make([]byte, 4096*pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xf0
		}

		Memset(buf, 0x00)

		for i, b := range buf {
			if b != 0 {
				t.Errorf("[spec %d] expected buffer to be cleared; byte %d is 0x%x", pageCount, i, b)
				break
			}
		}
	}

	// Memset with an empty buffer should be a no-op
	Memset(nil, 0xff)
}
