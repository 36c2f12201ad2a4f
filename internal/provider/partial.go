package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshotter turns an incrementally streamed JSON document into a series of
// syntactically complete snapshots.
type Snapshotter struct {
	buf  strings.Builder
	last []byte
}

// Feed appends chunk and returns the current snapshot when it differs from
// the previous one.
func (s *Snapshotter) Feed(chunk string) (json.RawMessage, bool) {
	s.buf.WriteString(chunk)
	doc, ok := completeJSON(stripFence(s.buf.String()))
	if !ok || !json.Valid([]byte(doc)) {
		return nil, false
	}
	return s.remember([]byte(doc))
}

// Final validates the whole buffer as one JSON document. changed reports
// whether it differs from the last snapshot returned by Feed.
func (s *Snapshotter) Final() (doc json.RawMessage, changed bool, err error) {
	text := strings.TrimSpace(stripFence(s.buf.String()))
	if !json.Valid([]byte(text)) {
		return nil, false, fmt.Errorf("%w: %d bytes of invalid JSON", ErrMalformed, len(text))
	}
	raw, changed := s.remember([]byte(text))
	if !changed {
		raw = append(json.RawMessage(nil), s.last...)
	}
	return raw, changed, nil
}

func (s *Snapshotter) remember(doc []byte) (json.RawMessage, bool) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return nil, false
	}
	if bytes.Equal(compact.Bytes(), s.last) {
		return nil, false
	}
	s.last = append(s.last[:0], compact.Bytes()...)
	return append(json.RawMessage(nil), s.last...), true
}

// stripFence removes a surrounding markdown code fence, which some models
// emit around JSON even when asked not to.
func stripFence(s string) string {
	t := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(t, "```") {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return ""
	}
	t = t[nl+1:]
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return t
}

type frame struct {
	obj       bool
	expectKey bool
}

// completeJSON closes a truncated JSON document. It cuts the input back to
// the last point at which every open container could be closed, or closes
// an unterminated string value in place. It returns false when no such
// point exists yet.
func completeJSON(s string) (string, bool) {
	var (
		stack      []frame
		inString   bool
		strIsKey   bool
		escaped    bool
		uniStart   = -1
		inScalar   bool
		safePos    = -1
		safeCloser string
	)

	closers := func() string {
		var b strings.Builder
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].obj {
				b.WriteByte('}')
			} else {
				b.WriteByte(']')
			}
		}
		return b.String()
	}
	mark := func(pos int) {
		safePos = pos
		safeCloser = closers()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case uniStart >= 0:
				if i-uniStart >= 5 {
					uniStart = -1
				}
			case escaped:
				escaped = false
				if c == 'u' {
					uniStart = i - 1
				}
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if !strIsKey {
					mark(i + 1)
				}
			}
			continue
		}

		if inScalar {
			if strings.IndexByte(",}] \t\r\n", c) < 0 {
				continue
			}
			inScalar = false
			mark(i)
		}

		switch c {
		case ' ', '\t', '\r', '\n':
		case '{':
			stack = append(stack, frame{obj: true, expectKey: true})
			mark(i + 1)
		case '[':
			stack = append(stack, frame{})
			mark(i + 1)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
			mark(i + 1)
		case '"':
			inString = true
			strIsKey = len(stack) > 0 && stack[len(stack)-1].obj && stack[len(stack)-1].expectKey
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].expectKey = false
			}
		case ',':
			if len(stack) > 0 && stack[len(stack)-1].obj {
				stack[len(stack)-1].expectKey = true
			}
		default:
			inScalar = true
		}
	}

	if inScalar && len(stack) == 0 {
		// A bare top-level scalar is only safe once the stream ends, which
		// Final handles.
		return "", false
	}

	if inString && !strIsKey {
		body := s
		switch {
		case uniStart >= 0:
			body = s[:uniStart]
		case escaped:
			body = s[:len(s)-1]
		}
		return body + `"` + closers(), true
	}

	if safePos < 0 {
		return "", false
	}
	return s[:safePos] + safeCloser, true
}
