package apps

import (
	"context"

	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/validate"
)

const wgetPath = "/usr/bin/wget"

type WgetInput struct {
	URL                 string  `json:"url" desc:"http or https URL to fetch"`
	Output              *string `json:"output,omitempty" desc:"target file (-O)"`
	User                *string `json:"user,omitempty" desc:"http user"`
	Password            *string `json:"password,omitempty" desc:"http password"`
	NoCheckCertificates *bool   `json:"no_check_certificates,omitempty" desc:"skip TLS certificate validation"`
}

func (in WgetInput) validate() error {
	return validate.HTTPURL(in.URL)
}

func (in WgetInput) args() []string {
	var args []string
	if in.User != nil {
		args = append(args, "--user", *in.User)
	}
	if in.Password != nil {
		args = append(args, "--password", *in.Password)
	}
	if in.Output != nil {
		args = append(args, "-O", *in.Output)
	}
	if isSet(in.NoCheckCertificates) {
		args = append(args, "--no-check-certificate")
	}
	return append(args, in.URL)
}

func newWget() App {
	out := "/tmp/index.html"
	return newTyped("wget", "Wget with limited function.", []ostag.OS{ostag.LinuxAny},
		func(ctx context.Context, in WgetInput, sys *system.System) (string, error) {
			stdout, err := sys.Run(ctx, wgetPath, in.args()...)
			return string(stdout), err
		},
		Example{
			Description: "Download a file to /tmp",
			Input:       WgetInput{URL: "https://example.org/", Output: &out},
			Output:      "",
		},
	)
}
