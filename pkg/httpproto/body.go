package httpproto

import "bytes"

// ExtractBody returns the bytes following the first "\r\n\r\n" in raw,
// per spec.md §4.5. A missing separator, or nothing following it, means
// there is no POST body to persist.
func ExtractBody(raw []byte) ([]byte, bool) {
	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil, false
	}

	body := raw[idx+4:]
	if len(body) == 0 {
		return nil, false
	}
	return body, true
}
