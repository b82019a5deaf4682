package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// MaxBodySize caps messages read from a stream.
const MaxBodySize = 10 * 1024 * 1024

// ErrMessageTooLarge is returned for a message over the size cap. Its bytes
// are consumed, so the next read starts at the following message.
var ErrMessageTooLarge = errors.New("bridge: message too large")

var contentLength = []byte("content-length:")

// ReadStdioMessage reads one JSON message from reader, either a single line
// or a Content-Length framed body. Blank lines between messages are
// skipped. A header line whose length is not a number comes back as is so
// the caller can reject it as malformed.
func ReadStdioMessage(reader *bufio.Reader, maxBodySize int) ([]byte, error) {
	for {
		line, err := readLine(reader, maxBodySize)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		if len(line) < len(contentLength) || !bytes.EqualFold(line[:len(contentLength)], contentLength) {
			return line, nil
		}

		length, convErr := strconv.Atoi(string(bytes.TrimSpace(line[len(contentLength):])))
		if convErr != nil || length < 0 {
			return line, nil
		}
		return readBody(reader, length, maxBodySize)
	}
}

// readBody skips the remaining headers and reads length bytes of body.
func readBody(reader *bufio.Reader, length, maxBodySize int) ([]byte, error) {
	for {
		header, err := readLine(reader, maxBodySize)
		if err != nil {
			return nil, err
		}
		if len(header) == 0 {
			break
		}
	}

	if length > maxBodySize {
		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			return nil, err
		}
		return nil, ErrMessageTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(body), nil
}

// readLine returns the next line without surrounding whitespace. It holds
// at most limit bytes; the rest of a longer line is drained and reported as
// ErrMessageTooLarge. io.EOF is returned only when nothing is left.
func readLine(reader *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	tooLarge := false
	for {
		chunk, err := reader.ReadSlice('\n')
		if !tooLarge {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLarge = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil && !errors.Is(err, io.EOF):
			return nil, err
		case tooLarge:
			return nil, ErrMessageTooLarge
		}

		trimmed := bytes.TrimSpace(line)
		if err != nil && len(trimmed) == 0 {
			return nil, io.EOF
		}
		return trimmed, nil
	}
}
