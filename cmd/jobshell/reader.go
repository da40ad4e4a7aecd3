package main

import (
	"bufio"
	"io"
)

type line struct {
	text string
	err  error
}

// lineReader reads one line from its input each time one is requested, so
// nothing is read while a job owns the terminal.
type lineReader struct {
	scanner  *bufio.Scanner
	requests chan struct{}
	lines    chan line
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		scanner:  bufio.NewScanner(r),
		requests: make(chan struct{}, 1),
		lines:    make(chan line, 1),
	}

	go lr.loop()

	return lr
}

// request asks for the next line. At most one request may be outstanding.
func (lr *lineReader) request() {
	lr.requests <- struct{}{}
}

// Lines returns the channel on which requested lines are delivered. io.EOF is
// delivered once the input is exhausted.
func (lr *lineReader) Lines() <-chan line {
	return lr.lines
}

func (lr *lineReader) loop() {
	for range lr.requests {
		if lr.scanner.Scan() {
			lr.lines <- line{text: lr.scanner.Text()}
			continue
		}

		err := lr.scanner.Err()
		if err == nil {
			err = io.EOF
		}

		lr.lines <- line{err: err}
	}
}
