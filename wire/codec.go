package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Encode writes a complete frame to w: header line, then each KV item,
// then each routing object, then each payload object, then "end\n", all in
// list order. The length field in the header line is always written as
// the literal placeholder "0000000000" — frame_length is a sender
// artifact the decoder never relies on.
func Encode(w io.Writer, f *Frame) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s 0000000000 %010d\n", f.Command, f.SeqNum); err != nil {
		return err
	}
	for _, kv := range f.KV {
		if _, err := fmt.Fprintf(bw, "kv %s %d\n", kv.Key, len(kv.Value)); err != nil {
			return err
		}
		if err := writeBody(bw, kv.Value); err != nil {
			return err
		}
	}
	for _, ro := range f.Routing {
		if _, err := fmt.Fprintf(bw, "ro %d %d\n", ro.Number, len(ro.Content)); err != nil {
			return err
		}
		if err := writeBody(bw, ro.Content); err != nil {
			return err
		}
	}
	for _, po := range f.Payload {
		if _, err := fmt.Fprintf(bw, "po %s %d\n", po.Type.String(), len(po.Content)); err != nil {
			return err
		}
		if err := writeBody(bw, po.Content); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("end\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeBody(bw *bufio.Writer, body []byte) error {
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}

// Decode reads one complete frame from r: the header line, then item
// blocks until a line containing exactly "end", validating header shape
// and item kind as it goes.
func Decode(r io.Reader) (*Frame, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	headerLine, err := readLine(br)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(headerLine, " ")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: frame header must have 3 fields, got %d", ErrParse, len(fields))
	}
	command := fields[0]
	frameLength, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || frameLength < 0 {
		return nil, fmt.Errorf("%w: invalid frame length %q", ErrParse, fields[1])
	}
	seqNum, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sequence number %q", ErrParse, fields[2])
	}

	frame := NewFrame(command, uint32(seqNum))

	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "end" {
			return frame, nil
		}

		itemFields := strings.Split(line, " ")
		if len(itemFields) != 3 {
			return nil, fmt.Errorf("%w: invalid item header %q", ErrParse, line)
		}
		kind, second, lengthField := itemFields[0], itemFields[1], itemFields[2]
		length, err := strconv.ParseInt(lengthField, 10, 64)
		if err != nil || length < 0 {
			return nil, fmt.Errorf("%w: invalid item length %q", ErrParse, lengthField)
		}

		switch kind {
		case "kv":
			body, err := readBody(br, int(length))
			if err != nil {
				return nil, err
			}
			frame.AddKV(second, body)

		case "ro":
			number, err := strconv.Atoi(second)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid routing object number %q", ErrParse, second)
			}
			body, err := readBody(br, int(length))
			if err != nil {
				return nil, err
			}
			ro, err := NewRoutingObject(number, body)
			if err != nil {
				return nil, err
			}
			frame.AddRoutingObject(ro)

		case "po":
			poType, err := ParsePayloadObjectType(second)
			if err != nil {
				return nil, err
			}
			body, err := readBody(br, int(length))
			if err != nil {
				return nil, err
			}
			frame.AddPayloadObject(NewPayloadObject(poType, body))

		default:
			return nil, fmt.Errorf("%w: unknown item kind %q", ErrParse, kind)
		}
	}
}

// readLine reads a single '\n'-terminated line with the terminator
// stripped. A trailing '\r' is not special-cased — the protocol mandates
// bare '\n' terminators.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// readBody reads exactly n body bytes followed by the mandatory
// terminator byte, which is consumed and discarded.
func readBody(br *bufio.Reader, n int) ([]byte, error) {
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, err
	}
	if _, err := br.Discard(1); err != nil {
		return nil, err
	}
	return body, nil
}
