// Package controller composes the registries, the task ledger, token
// handling and the endpoint resolution into one administration unit per
// managed endpoint.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/auth"
	"github.com/soofff/boofi/internal/files"
	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/task"
)

// ErrAppIncompatible is returned when an app does not support the endpoint
// operating system.
var ErrAppIncompatible = errors.New("app incompatible with endpoint")

const DefaultTokenTTL = 24 * time.Hour

// Options configures a Controller.
type Options struct {
	Name     string // service name, used in logs
	TokenTTL time.Duration
	Factory  system.BackendFactory
	Recorder task.Recorder // optional, receives finished tasks
}

// Controller is safe for concurrent use. Every collaborator guards its own
// state; the Controller itself never holds a lock while an app or file
// handler runs.
type Controller struct {
	name    string
	apps    *apps.Registry
	files   *files.Registry
	tasks   *task.Controller
	auth    *auth.Controller
	systems *system.Manager
}

func New(opts Options) *Controller {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	c := &Controller{
		name:    opts.Name,
		apps:    apps.NewRegistry(),
		files:   files.NewRegistry(),
		tasks:   task.NewController(opts.Recorder),
		auth:    auth.NewController(ttl),
		systems: system.NewManager(opts.Factory),
	}
	log.Printf("[Controller] %s: %d apps and %d file handlers loaded", c.name, len(c.apps.List()), len(c.files.List()))
	return c
}

func (c *Controller) Name() string { return c.name }

// System resolves the endpoint on behalf of cred.
func (c *Controller) System(ctx context.Context, cred system.Credential) (*system.System, error) {
	return c.systems.System(ctx, cred)
}

func (c *Controller) endpoint(ctx context.Context, cred system.Credential) (*system.System, ostag.OS, error) {
	sys, err := c.systems.System(ctx, cred)
	if err != nil {
		return nil, ostag.Unknown, err
	}
	os, err := sys.OS()
	if err != nil {
		return nil, ostag.Unknown, err
	}
	return sys, os, nil
}

// Verify checks cred by running a no-op program as that user.
func (c *Controller) Verify(ctx context.Context, cred system.Credential) error {
	sys, err := c.systems.System(ctx, cred)
	if err != nil {
		return err
	}
	return sys.VerifyCredential(ctx)
}

// IssueToken verifies cred and returns a fresh token for it. A previous
// token of the same user stops working.
func (c *Controller) IssueToken(ctx context.Context, cred system.Credential) (string, error) {
	if err := c.Verify(ctx, cred); err != nil {
		return "", err
	}
	return c.auth.InsertOrReplace(cred)
}

func (c *Controller) RevokeToken(token string) bool {
	return c.auth.Delete(token)
}

func (c *Controller) ResolveToken(token string) (system.Credential, error) {
	return c.auth.Get(token)
}

func (c *Controller) Apps() []apps.App {
	return c.apps.List()
}

// AppsHelp documents every app against the endpoint operating system.
func (c *Controller) AppsHelp(ctx context.Context, cred system.Credential) ([]apps.Help, error) {
	_, os, err := c.endpoint(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.apps.Help(os), nil
}

func (c *Controller) App(name string) (apps.App, error) {
	return c.apps.Lookup(name)
}

// Result is the outcome of one app invocation: the app output when run
// synchronously, the created task otherwise.
type Result struct {
	Output json.RawMessage
	Task   *task.Task
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Task != nil {
		return json.Marshal(r.Task)
	}
	if len(r.Output) == 0 {
		return []byte("null"), nil
	}
	return r.Output, nil
}

// Invocation names one app of a batch together with its input.
type Invocation struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// RunApp runs the app called name. With async set the app is handed to
// the task ledger and the created task is returned immediately.
func (c *Controller) RunApp(ctx context.Context, cred system.Credential, name string, input json.RawMessage, async bool) (Result, error) {
	results, err := c.RunApps(ctx, cred, []Invocation{{Name: name, Input: input}}, async)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// RunApps runs a batch in order. Every app is looked up and checked for
// compatibility before the first one runs; a synchronous failure stops the
// batch.
func (c *Controller) RunApps(ctx context.Context, cred system.Credential, batch []Invocation, async bool) ([]Result, error) {
	sys, os, err := c.endpoint(ctx, cred)
	if err != nil {
		return nil, err
	}

	resolved := make([]apps.App, len(batch))
	for i, inv := range batch {
		app, err := c.apps.Lookup(inv.Name)
		if err != nil {
			return nil, err
		}
		if !app.Compatible(os) {
			return nil, fmt.Errorf("%w: %s on %s", ErrAppIncompatible, app.Name(), os)
		}
		resolved[i] = app
	}

	results := make([]Result, 0, len(batch))
	for i, app := range resolved {
		if async {
			t, err := c.tasks.New(ctx, app, batch[i].Input, sys)
			if err != nil {
				return nil, err
			}
			log.Printf("[Controller] %s: task %d created for %s by %s", c.name, t.ID, app.Name(), cred.Username)
			results = append(results, Result{Task: &t})
			continue
		}
		out, err := app.Run(ctx, batch[i].Input, sys)
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", app.Name(), err)
		}
		results = append(results, Result{Output: out})
	}
	return results, nil
}

func (c *Controller) Task(id uint64) (task.Task, error) {
	return c.tasks.Get(id)
}

func (c *Controller) Tasks() []task.Task {
	return c.tasks.List()
}
