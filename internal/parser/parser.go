package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/lingqdeck/internal/domain"
)

const separator = "---"

type field int

const (
	none field = iota
	question
	answer
	context
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", context},
}

// ParseFile reads a deck file from the given path and extracts all notes.
func ParseFile(path string) ([]domain.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads Q:/A:/C: blocks from r. A note ends at a "---" line, at the
// next Q: line or at the end of input; notes without a question are dropped.
func Parse(r io.Reader) ([]domain.Note, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishNote()
	return p.notes, nil
}

type deckParser struct {
	notes   []domain.Note
	current domain.Note
	field   field
	block   []string
}

func (p *deckParser) line(line string) {
	if line == separator {
		p.finishNote()
		return
	}

	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flush()
		if pf.field == question && p.field != none {
			p.finishNote()
		}
		p.field = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.field != none {
		p.block = append(p.block, line)
	}
}

// flush stores the accumulated block into the field being read.
func (p *deckParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.Join(p.block, "\n")
	switch p.field {
	case question:
		p.current.Question = content
	case answer:
		p.current.Answer = content
	case context:
		p.current.Context = content
	}
	p.block = nil
}

func (p *deckParser) finishNote() {
	p.flush()
	if p.current.Question != "" {
		p.notes = append(p.notes, p.current)
	}
	p.current = domain.Note{}
	p.field = none
}
