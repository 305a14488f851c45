package convert

// IsPCM16Aligned reports whether byteLen holds a whole number of 16-bit
// frames for the given channel count.
func IsPCM16Aligned(byteLen, channels int) bool {
	if channels <= 0 {
		return false
	}
	return byteLen%(2*channels) == 0
}
