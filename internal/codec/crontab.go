package codec

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/adhocore/gronx"
)

// CrontabLine is one line of /etc/crontab or a file under /etc/cron.d.
// Exactly one of Variable, Job or Comment is set; none means a blank line.
type CrontabLine struct {
	Variable *CrontabVariable `json:"variable,omitempty"`
	Job      *CrontabJob      `json:"job,omitempty"`
	Comment  string           `json:"comment,omitempty"`
}

// CrontabVariable is an environment assignment such as SHELL=/bin/sh.
type CrontabVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CrontabJob is a system crontab job; system crontabs carry a user column.
type CrontabJob struct {
	Schedule string `json:"schedule" desc:"five cron fields or an @ macro"`
	User     string `json:"user"`
	Command  string `json:"command"`
}

func ParseCrontab(content string) ([]CrontabLine, error) {
	gron := gronx.New()
	out := []CrontabLine{}
	for i, line := range lines(content) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, CrontabLine{})
		case isComment(trimmed):
			out = append(out, CrontabLine{Comment: trimmed})
		case isAssignment(trimmed):
			name, value, _ := strings.Cut(trimmed, "=")
			out = append(out, CrontabLine{Variable: &CrontabVariable{
				Name:  strings.TrimSpace(name),
				Value: unquote(value),
			}})
		default:
			job, err := parseCrontabJob(gron, trimmed)
			if err != nil {
				return nil, parseErr("crontab", i+1, "%v", err)
			}
			out = append(out, CrontabLine{Job: &job})
		}
	}
	return out, nil
}

func FormatCrontab(entries []CrontabLine) (string, error) {
	gron := gronx.New()
	var b strings.Builder
	for i, e := range entries {
		switch {
		case e.Job != nil:
			if err := validateSchedule(gron, e.Job.Schedule); err != nil {
				return "", fmt.Errorf("crontab entry %d: %w", i, err)
			}
			if e.Job.User == "" || strings.TrimSpace(e.Job.Command) == "" {
				return "", fmt.Errorf("crontab entry %d: user and command are required", i)
			}
			fmt.Fprintf(&b, "%s\t%s\t%s", e.Job.Schedule, e.Job.User, e.Job.Command)
		case e.Variable != nil:
			if !isAssignment(e.Variable.Name + "=") {
				return "", fmt.Errorf("crontab entry %d: invalid variable name %q", i, e.Variable.Name)
			}
			fmt.Fprintf(&b, "%s=%s", e.Variable.Name, e.Variable.Value)
		case e.Comment != "":
			if !strings.HasPrefix(e.Comment, "#") {
				b.WriteString("# ")
			}
			b.WriteString(e.Comment)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func parseCrontabJob(gron *gronx.Gronx, line string) (CrontabJob, error) {
	fields := strings.Fields(line)
	scheduleFields := 5
	if strings.HasPrefix(fields[0], "@") {
		scheduleFields = 1
	}
	if len(fields) < scheduleFields+2 {
		return CrontabJob{}, fmt.Errorf("expected schedule, user and command")
	}
	schedule := strings.Join(fields[:scheduleFields], " ")
	if err := validateSchedule(gron, schedule); err != nil {
		return CrontabJob{}, err
	}
	return CrontabJob{
		Schedule: schedule,
		User:     fields[scheduleFields],
		Command:  commandAfter(line, scheduleFields+1),
	}, nil
}

// commandAfter returns line with its first n whitespace separated fields
// removed, keeping the spacing inside the command itself.
func commandAfter(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		idx := strings.IndexFunc(rest, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimSpace(rest)
}

func validateSchedule(gron *gronx.Gronx, schedule string) error {
	if schedule == "@reboot" {
		return nil
	}
	if !gron.IsValid(schedule) {
		return fmt.Errorf("invalid schedule %q", schedule)
	}
	return nil
}

func isAssignment(line string) bool {
	name, _, ok := strings.Cut(line, "=")
	if !ok || name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return !unicode.IsDigit(rune(name[0]))
}
