package wire

// ValidKey reports whether key satisfies §3's key grammar: at most
// MaxKeyLength bytes (measured after encoding, so callers pass the final
// on-wire bytes), no ASCII whitespace (space, tab, CR, LF) and no NUL.
// Unlike the meta-protocol teacher's IsValidKey, control bytes below 0x20
// other than whitespace are not rejected outright — only the bytes §3
// names explicitly — since the text protocol's line framing only breaks on
// those.
func ValidKey(key []byte) bool {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return false
	}
	for _, b := range key {
		switch b {
		case ' ', '\t', '\r', '\n', 0x00:
			return false
		}
	}
	return true
}
