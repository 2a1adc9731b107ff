package protocol

import "bytes"

// ScanDatagrams is a bufio.SplitFunc that frames the receiver's output
// into individual datagrams.
//
// The device sends a sequence of datagrams separated by ';'. Bursts commonly
// arrive in a single read when the receiver is busy, and a datagram can just
// as easily arrive split across two reads; the scanner buffers until a
// terminator is seen. Stray CR/LF around datagrams is tolerated.
//
// At EOF any unterminated remainder is emitted as a final token; Decode
// will reject it if it is incomplete.
func ScanDatagrams(data []byte, atEOF bool) (advance int, token []byte, err error) {
	// Skip leading separators and line noise.
	start := 0
	for start < len(data) {
		switch data[start] {
		case ';', '\r', '\n', ' ', '\t':
			start++
			continue
		}
		break
	}

	if i := bytes.IndexByte(data[start:], ';'); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}

	// Request more data. Consumed separators can be discarded now.
	return start, nil, nil
}
