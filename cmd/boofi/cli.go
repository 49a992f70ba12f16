package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/soofff/boofi/internal/client"
)

const (
	clientTimeout    = 2 * time.Minute
	taskPollInterval = 500 * time.Millisecond
)

var clientOpts client.Options

// addClientFlags registers the connection flags shared by the remote
// commands. Unset flags fall back to the BOOFI_* variables.
func addClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&clientOpts.BaseURL, "url", "", "Agent base URL (env "+client.EnvURL+")")
	flags.StringVarP(&clientOpts.Service, "service", "s", "", "Service name (env "+client.EnvService+")")
	flags.StringVarP(&clientOpts.Username, "user", "u", "", "Username for basic auth (env "+client.EnvUser+")")
	flags.StringVar(&clientOpts.Token, "token", "", "Bearer token (env "+client.EnvToken+")")
	flags.BoolVarP(&clientOpts.Insecure, "insecure", "k", false, "Skip TLS certificate verification")
}

func newRemoteCommands() []*cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the configured user",
		Args:  cobra.NoArgs,
		RunE:  tokenIssue,
	}
	tokenCmd.AddCommand(&cobra.Command{
		Use:   "revoke",
		Short: "Revoke the configured bearer token",
		Args:  cobra.NoArgs,
		RunE:  tokenRevoke,
	})

	appsCmd := &cobra.Command{
		Use:   "apps",
		Short: "Show the apps of a service and their input/output schemas",
		Args:  cobra.NoArgs,
		RunE:  appsHelp,
	}

	runCmd := &cobra.Command{
		Use:   "run <app> [json-input]",
		Short: "Run an app, reading the input from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runApp,
	}
	runCmd.Flags().Bool("async", false, "Start a task and print it instead of waiting")
	runCmd.Flags().Bool("wait", false, "With --async, poll the task until it finishes")

	tasksCmd := &cobra.Command{
		Use:   "tasks [id]",
		Short: "List tasks or show one task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showTasks,
	}

	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Read, write and delete files through their handlers",
	}
	filesCmd.PersistentFlags().String("name", "", "File handler to use instead of path matching")
	filesCmd.AddCommand(
		&cobra.Command{Use: "get <path>", Short: "Read a file or list a directory", Args: cobra.ExactArgs(1), RunE: filesGet},
		&cobra.Command{Use: "put <path> [json-input]", Short: "Write a file, reading the input from stdin when omitted", Args: cobra.RangeArgs(1, 2), RunE: filesPut},
		&cobra.Command{Use: "rm <path>", Short: "Delete a file", Args: cobra.ExactArgs(1), RunE: filesRemove},
	)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded task runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  showJournal,
	}
	journalCmd.Flags().Int("limit", 0, "Maximum number of entries")

	cmds := []*cobra.Command{tokenCmd, appsCmd, runCmd, tasksCmd, filesCmd, journalCmd}
	for _, c := range cmds {
		addClientFlags(c)
	}
	return cmds
}

// withClient builds the client and runs fn under a bounded context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	opts := client.OptionsFromEnv(clientOpts, os.LookupEnv)
	c, err := client.New(opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printOutput prints plain strings as they are and everything else as
// indented JSON.
func printOutput(w io.Writer, raw json.RawMessage) error {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		_, err := io.WriteString(w, s)
		return err
	}
	return printJSON(w, raw)
}

// inputArg returns args[i] or, when absent, stdin.
func inputArg(cmd *cobra.Command, args []string, i int) (json.RawMessage, error) {
	var data []byte
	if len(args) > i {
		data = []byte(args[i])
	} else {
		var err error
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return data, nil
}

func tokenIssue(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		token, err := c.IssueToken(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	})
}

func tokenRevoke(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		removed, err := c.RevokeToken(ctx)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintln(cmd.OutOrStdout(), "Token revoked")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Token was already gone")
		}
		return nil
	})
}

func appsHelp(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		help, err := c.Apps(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), help)
	})
}

func runApp(cmd *cobra.Command, args []string) error {
	input, err := inputArg(cmd, args, 1)
	if err != nil {
		return err
	}
	async, _ := cmd.Flags().GetBool("async")
	wait, _ := cmd.Flags().GetBool("wait")

	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		out, err := c.RunApp(ctx, args[0], input, async)
		if err != nil {
			return err
		}
		if !async {
			return printOutput(cmd.OutOrStdout(), out)
		}
		if !wait {
			return printJSON(cmd.OutOrStdout(), out)
		}
		var created struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(out, &created); err != nil {
			return fmt.Errorf("decode task: %w", err)
		}
		done, err := c.WaitTask(ctx, created.ID, taskPollInterval)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), done)
	})
}

func showTasks(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		if len(args) == 0 {
			tasks, err := c.Tasks(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tasks)
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		t, err := c.Task(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), t)
	})
}

func filesGet(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		out, err := c.ReadFile(ctx, args[0], name)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), out)
	})
}

func filesPut(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	input, err := inputArg(cmd, args, 1)
	if err != nil {
		return err
	}
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		return c.WriteFile(ctx, args[0], name, input)
	})
}

func filesRemove(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		return c.DeleteFile(ctx, args[0], name)
	})
}

func showJournal(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		entries, err := c.Journal(ctx, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	})
}
