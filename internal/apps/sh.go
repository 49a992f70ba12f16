package apps

import (
	"context"
	"errors"

	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
)

const shPath = "/bin/sh"

type ShInput struct {
	Command string `json:"command" desc:"command line passed to sh -c"`
}

func (in ShInput) validate() error {
	if in.Command == "" {
		return errors.New("command is required")
	}
	return nil
}

func newSh() App {
	return newTyped("sh", "Shell", []ostag.OS{ostag.LinuxAny},
		func(ctx context.Context, in ShInput, sys *system.System) (string, error) {
			out, err := sys.Run(ctx, shPath, "-c", in.Command)
			return string(out), err
		},
		Example{Description: "Run command", Input: ShInput{Command: "whoami"}, Output: "root\n"},
	)
}

type TouchInput struct {
	Path string `json:"path" desc:"file to create or update"`
}

func (in TouchInput) validate() error {
	if in.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func newTouch() App {
	return newTyped("touch", "Touch command", []ostag.OS{ostag.LinuxAny},
		func(ctx context.Context, in TouchInput, sys *system.System) (None, error) {
			_, err := sys.Run(ctx, "/bin/touch", in.Path)
			return None{}, err
		},
		Example{Description: "Create an empty file", Input: TouchInput{Path: "/tmp/file.txt"}, Output: nil},
	)
}
