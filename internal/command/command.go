// Package command turns a line of user input into a Request for the
// interpreter. Built-in commands are recognised here, so the rest of the
// interpreter never compares command text.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nixpig/jobshell/internal/jobcontrol"
)

var ErrMissingRedirectPath = errors.New("missing path for redirection")

// Request is one of Empty, Launch, ChangeDir, Exit, Jobs, Foreground or
// Background.
type Request interface {
	request()
}

// Empty is a blank line.
type Empty struct{}

// Launch runs a program.
type Launch struct {
	jobcontrol.LaunchRequest
}

// ChangeDir changes the working directory. An empty Path means the home
// directory.
type ChangeDir struct {
	Path string
}

// Exit ends the interpreter.
type Exit struct{}

// Jobs lists the job table.
type Jobs struct{}

// Foreground resumes a job in the foreground.
type Foreground struct {
	Ref jobcontrol.JobRef
}

// Background resumes a stopped job in the background.
type Background struct {
	Ref jobcontrol.JobRef
}

func (Empty) request()      {}
func (Launch) request()     {}
func (ChangeDir) request()  {}
func (Exit) request()       {}
func (Jobs) request()       {}
func (Foreground) request() {}
func (Background) request() {}

// Parse parses line. Words are separated by blanks. A trailing '&', alone or
// attached to the last word, runs the program in the background, and '<'
// and '>', alone or attached to their path, redirect standard input and
// output.
func Parse(line string) (Request, error) {
	words := strings.Fields(line)

	background := false
	if n := len(words); n > 0 && strings.HasSuffix(words[n-1], "&") {
		background = true

		if last := strings.TrimSuffix(words[n-1], "&"); last == "" {
			words = words[:n-1]
		} else {
			words[n-1] = last
		}
	}

	argv, inputPath, outputPath, err := parseRedirections(words)
	if err != nil {
		return nil, err
	}

	if len(argv) == 0 {
		return Empty{}, nil
	}

	switch argv[0] {
	case "cd":
		if len(argv) > 1 {
			return ChangeDir{Path: argv[1]}, nil
		}

		return ChangeDir{}, nil

	case "exit":
		return Exit{}, nil

	case "jobs":
		return Jobs{}, nil

	case "fg":
		ref, err := parseRef(argv)
		if err != nil {
			return nil, err
		}

		return Foreground{Ref: ref}, nil

	case "bg":
		ref, err := parseRef(argv)
		if err != nil {
			return nil, err
		}

		return Background{Ref: ref}, nil
	}

	return Launch{LaunchRequest: jobcontrol.LaunchRequest{
		Argv:       argv,
		Background: background,
		InputPath:  inputPath,
		OutputPath: outputPath,
	}}, nil
}

func parseRedirections(words []string) ([]string, string, string, error) {
	var argv []string
	var inputPath, outputPath string

	for i := 0; i < len(words); i++ {
		word := words[i]

		var target *string

		switch {
		case strings.HasPrefix(word, "<"):
			target = &inputPath
		case strings.HasPrefix(word, ">"):
			target = &outputPath
		default:
			argv = append(argv, word)
			continue
		}

		path := word[1:]
		if path == "" {
			if i+1 >= len(words) {
				return nil, "", "", fmt.Errorf("%w after '%c'", ErrMissingRedirectPath, word[0])
			}

			i++
			path = words[i]
		}

		*target = path
	}

	return argv, inputPath, outputPath, nil
}

func parseRef(argv []string) (jobcontrol.JobRef, error) {
	if len(argv) < 2 {
		return jobcontrol.Latest(), nil
	}

	position, err := strconv.Atoi(argv[1])
	if err != nil {
		return jobcontrol.JobRef{}, fmt.Errorf("%s: invalid job position '%s'", argv[0], argv[1])
	}

	return jobcontrol.At(position), nil
}
