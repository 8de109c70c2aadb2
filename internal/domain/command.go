package domain

// Command is an opaque payload sent by a browser for the hardware firmware.
// The relay never inspects its contents.
type Command []byte

// String returns the payload as text, for logging
func (c Command) String() string {
	return string(c)
}
