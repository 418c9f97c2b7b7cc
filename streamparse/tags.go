package streamparse

import "strings"

// tagState is the explicit FSM state for the inline tool-call tag grammar:
// <tool_name><param_name>value</param_name></tool_name>, nested one level
// only. The machine buffers only the current tag/value; it never
// backtracks over already-consumed input.
type tagState int

const (
	stateText tagState = iota
	stateToolOpenName
	stateInsideTool
	stateParamOpenName
	stateParamValue
	stateParamCloseName
	stateToolCloseName
)

// pendingTool accumulates one inline tool call while its body is scanned.
type pendingTool struct {
	name   string
	params map[string]string
	order  []string
}

// tagScanner converts a rune stream into text chunks and completed inline
// tool calls, in source order.
type tagScanner struct {
	state tagState
	buf   strings.Builder

	tool       pendingTool
	paramName  string
	paramValue string

	onText     func(string)
	onToolCall func(name string, params map[string]string, order []string)
}

func newTagScanner(onText func(string), onToolCall func(string, map[string]string, []string)) *tagScanner {
	return &tagScanner{state: stateText, onText: onText, onToolCall: onToolCall}
}

// Feed scans one chunk of text, possibly spanning tag boundaries.
func (s *tagScanner) Feed(chunk string) {
	for _, r := range chunk {
		s.step(r)
	}
}

// Flush is called at stream end; any partial tag is discarded per spec
// ("unclosed tags at stream end are discarded"), and any buffered plain
// text is emitted.
func (s *tagScanner) Flush() {
	if s.state == stateText && s.buf.Len() > 0 {
		s.emitText()
	}
	// Any other state means an unterminated tag: discard silently.
	s.reset()
}

func (s *tagScanner) reset() {
	s.state = stateText
	s.buf.Reset()
	s.tool = pendingTool{}
	s.paramName = ""
}

func (s *tagScanner) emitText() {
	if s.buf.Len() == 0 {
		return
	}
	text := s.buf.String()
	s.buf.Reset()
	if s.onText != nil {
		s.onText(text)
	}
}

func isNameStart(r rune) bool { return r >= 'a' && r <= 'z' }
func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

func (s *tagScanner) step(r rune) {
	switch s.state {
	case stateText:
		if r == '<' {
			s.emitText()
			s.state = stateToolOpenName
			return
		}
		s.buf.WriteRune(r)

	case stateToolOpenName:
		switch {
		case r == '>' && s.buf.Len() > 0 && isNameStart(rune(s.buf.String()[0])):
			s.tool = pendingTool{name: s.buf.String(), params: map[string]string{}}
			s.buf.Reset()
			s.state = stateInsideTool
		case isNameRune(r) || (s.buf.Len() == 0 && isNameStart(r)):
			s.buf.WriteRune(r)
		default:
			// Not a valid tag name: this was not a real tag opener. Treat the
			// '<' and buffered chars as literal text and resume scanning.
			s.abortToText(r)
		}

	case stateInsideTool:
		if r == '<' {
			s.state = stateParamOpenName
			s.buf.Reset()
			return
		}
		// Whitespace between param tags is ignored; anything else is
		// malformed and discards the whole pending tag (no backtracking
		// into TEXT, per design — a malformed inline call is simply lost).
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			s.reset()
		}

	case stateParamOpenName:
		if r == '/' && s.buf.Len() == 0 {
			s.state = stateToolCloseName
			return
		}
		switch {
		case r == '>' && s.buf.Len() > 0:
			s.paramName = s.buf.String()
			s.buf.Reset()
			s.state = stateParamValue
		case isNameRune(r) || (s.buf.Len() == 0 && isNameStart(r)):
			s.buf.WriteRune(r)
		default:
			s.reset()
		}

	case stateParamValue:
		if r == '<' {
			s.paramValue = s.buf.String()
			s.buf.Reset()
			s.state = stateParamCloseName
			return
		}
		s.buf.WriteRune(r)

	case stateParamCloseName:
		if r == '/' && s.buf.Len() == 0 {
			return
		}
		if r == '>' {
			closeName := s.buf.String()
			value := ""
			s.state = stateInsideTool
			if closeName == s.paramName {
				value = s.takeValueBuffer()
				s.tool.order = append(s.tool.order, s.paramName)
				s.tool.params[s.paramName] = value
			} else {
				s.reset()
			}
			return
		}
		s.buf.WriteRune(r)

	case stateToolCloseName:
		if r == '>' {
			closeName := s.buf.String()
			s.buf.Reset()
			if closeName == s.tool.name {
				if s.onToolCall != nil {
					s.onToolCall(s.tool.name, s.tool.params, s.tool.order)
				}
				s.reset()
			} else {
				s.reset()
			}
			return
		}
		s.buf.WriteRune(r)
	}
}

// abortToText handles a failed tag-open attempt: the '<' plus whatever name
// characters were buffered, plus the rune that broke the pattern, are all
// literal text.
func (s *tagScanner) abortToText(broken rune) {
	failed := s.buf.String()
	s.buf.Reset()
	s.state = stateText
	s.buf.WriteByte('<')
	s.buf.WriteString(failed)
	s.buf.WriteRune(broken)
}

// takeValueBuffer returns the param value captured when stateParamValue
// transitioned into stateParamCloseName.
func (s *tagScanner) takeValueBuffer() string {
	return s.paramValue
}
