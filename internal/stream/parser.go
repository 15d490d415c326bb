package stream

import (
	"bufio"
	"io"
	"strings"
)

const (
	EventBingoNumber = "bingo_number"
	EventGameOver    = "game_over"

	defaultEventType = "message"
	maxLineBytes     = 1 << 20
)

type Event struct {
	Name string
	Data string
}

// Parser turns event-stream lines into events. The zero value is ready to use.
type Parser struct {
	event string
	data  strings.Builder
}

// Feed consumes one line (without its terminator). It returns an event when
// the line is the blank terminator of a frame that carried data.
func (p *Parser) Feed(line string) (Event, bool) {
	switch {
	case line == "":
		if p.data.Len() == 0 {
			return Event{}, false
		}
		ev := Event{Name: p.eventName(), Data: p.data.String()}
		p.Reset()
		return ev, true
	case strings.HasPrefix(line, ":"):
		// comment / keep-alive
	case strings.HasPrefix(line, "event:"):
		p.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		p.data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	return Event{}, false
}

// Reset drops any half-built frame.
func (p *Parser) Reset() {
	p.event = ""
	p.data.Reset()
}

func (p *Parser) eventName() string {
	if p.event == "" {
		return defaultEventType
	}
	return p.event
}

// Decode reads r line by line and calls emit for every complete frame.
// A frame still open when r ends is discarded. onLine, if set, runs before
// each line is parsed.
func Decode(r io.Reader, emit func(Event), onLine func()) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var p Parser
	for sc.Scan() {
		if onLine != nil {
			onLine()
		}
		if ev, ok := p.Feed(sc.Text()); ok {
			emit(ev)
		}
	}
	return sc.Err()
}
