package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha1("abc")
	if got := Sum([]byte("abc")); got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("Sum = %q", got)
	}
}
