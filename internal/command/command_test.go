package command_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nixpig/jobshell/internal/command"
	"github.com/nixpig/jobshell/internal/jobcontrol"
)

func TestParse(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		line string
		want command.Request
	}{
		"Blank line": {
			line: "   \t ",
			want: command.Empty{},
		},
		"Program with arguments": {
			line: "ls -l /tmp",
			want: command.Launch{LaunchRequest: jobcontrol.LaunchRequest{
				Argv: []string{"ls", "-l", "/tmp"},
			}},
		},
		"Background with separate ampersand": {
			line: "sleep 5 &",
			want: command.Launch{LaunchRequest: jobcontrol.LaunchRequest{
				Argv:       []string{"sleep", "5"},
				Background: true,
			}},
		},
		"Background with attached ampersand": {
			line: "sleep 5&",
			want: command.Launch{LaunchRequest: jobcontrol.LaunchRequest{
				Argv:       []string{"sleep", "5"},
				Background: true,
			}},
		},
		"Redirections with separate paths": {
			line: "sort < in.txt > out.txt",
			want: command.Launch{LaunchRequest: jobcontrol.LaunchRequest{
				Argv:       []string{"sort"},
				InputPath:  "in.txt",
				OutputPath: "out.txt",
			}},
		},
		"Redirections with attached paths in background": {
			line: "sort -r <in.txt >out.txt &",
			want: command.Launch{LaunchRequest: jobcontrol.LaunchRequest{
				Argv:       []string{"sort", "-r"},
				Background: true,
				InputPath:  "in.txt",
				OutputPath: "out.txt",
			}},
		},
		"Change directory": {
			line: "cd /tmp",
			want: command.ChangeDir{Path: "/tmp"},
		},
		"Change to home directory": {
			line: "cd",
			want: command.ChangeDir{},
		},
		"Exit": {
			line: "exit",
			want: command.Exit{},
		},
		"Jobs": {
			line: "jobs",
			want: command.Jobs{},
		},
		"Foreground most recent": {
			line: "fg",
			want: command.Foreground{Ref: jobcontrol.Latest()},
		},
		"Foreground by position": {
			line: "fg 2",
			want: command.Foreground{Ref: jobcontrol.At(2)},
		},
		"Background zero position": {
			line: "bg 0",
			want: command.Background{Ref: jobcontrol.At(0)},
		},
		"Background most recent": {
			line: "bg",
			want: command.Background{Ref: jobcontrol.Latest()},
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			got, err := command.Parse(config.line)
			if err != nil {
				t.Fatalf("expected not to receive error: got '%v'", err)
			}

			if !reflect.DeepEqual(got, config.want) {
				t.Errorf("expected request: got '%#v', want '%#v'", got, config.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	t.Run("Test missing redirect path", func(t *testing.T) {
		t.Parallel()

		for _, line := range []string{"cat <", "echo hi >", "sort < in.txt >"} {
			if _, err := command.Parse(line); !errors.Is(err, command.ErrMissingRedirectPath) {
				t.Errorf("expected to receive ErrMissingRedirectPath for '%s': got '%v'", line, err)
			}
		}
	})

	t.Run("Test invalid job position", func(t *testing.T) {
		t.Parallel()

		if _, err := command.Parse("fg one"); err == nil {
			t.Error("expected to receive error for non-numeric position")
		}
	})
}
