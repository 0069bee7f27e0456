package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rendis/flowrun/internal/credentials"
	"github.com/rendis/flowrun/internal/diagram"
	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/internal/logging"
	"github.com/rendis/flowrun/internal/store"
	"github.com/rendis/flowrun/internal/streaming"
	"github.com/rendis/flowrun/pkg/mcp"
	"github.com/rendis/flowrun/pkg/schema"
)

func newFlagSet(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	a.cfg.bindFlags(fs)
	return fs
}

// parse parses args and re-applies logging settings that flags may change.
func parse(fs *flag.FlagSet, a *app, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(a.stderr, level, a.cfg.LogFormat)
	return nil
}

func cmdRun(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("run", a)
	file := fs.String("f", "", "workflow definition file (required)")
	userID := fs.String("user", "", "user the run executes as (required)")
	triggerFile := fs.String("trigger", "", "trigger payload file (default: the definition's triggerData)")
	runID := fs.String("run-id", "", "run id (default: generated)")
	follow := fs.Bool("follow", false, "print run events to stderr as they happen")
	archive := fs.Bool("archive", false, "record the run and its events in the database")
	if err := parse(fs, a, args); err != nil {
		return err
	}
	if *file == "" || *userID == "" {
		return errors.New("run: -f and -user are required")
	}

	def, err := readDefinition(*file)
	if err != nil {
		return err
	}
	var trigger map[string]any
	if *triggerFile != "" {
		if err := readJSON(*triggerFile, &trigger); err != nil {
			return err
		}
	}

	exec, err := a.executor(ctx, *archive)
	if err != nil {
		return err
	}
	if *follow {
		stop := followEvents(ctx, a.hub, a.stderr)
		defer stop()
	}

	result, runErr := exec.Run(ctx, engine.RunRequest{
		RunID:       *runID,
		UserID:      *userID,
		Definition:  def,
		TriggerData: trigger,
	})
	if result == nil {
		return runErr
	}
	if err := writeJSON(a.stdout, result); err != nil {
		return err
	}
	if runErr != nil {
		fmt.Fprintf(a.stderr, "run aborted: %v\n", runErr)
		return errSilent
	}
	return nil
}

// followEvents prints every hub event as a JSON line until stop is called.
func followEvents(ctx context.Context, hub streaming.EventHub, w io.Writer) (stop func()) {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for event := range ch {
			_ = enc.Encode(event)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func cmdValidate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("validate", a)
	file := fs.String("f", "", "workflow definition file (required)")
	if err := parse(fs, a, args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("validate: -f is required")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	v, err := a.validator(ctx)
	if err != nil {
		return err
	}
	_, result := v.ValidateJSON(raw)
	if err := writeJSON(a.stdout, map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	}); err != nil {
		return err
	}
	if !result.Valid() {
		return errSilent
	}
	return nil
}

func cmdGraph(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("graph", a)
	file := fs.String("f", "", "workflow definition file (required)")
	resultFile := fs.String("result", "", "run result file whose statuses are overlaid")
	format := fs.String("format", "mermaid", "output format: mermaid, ascii, png, svg")
	out := fs.String("o", "", "output file (default: stdout)")
	if err := parse(fs, a, args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("graph: -f is required")
	}

	def, err := readDefinition(*file)
	if err != nil {
		return err
	}
	var result *schema.RunResult
	if *resultFile != "" {
		result = &schema.RunResult{}
		if err := readJSON(*resultFile, result); err != nil {
			return err
		}
	}

	model, err := diagram.Build(def, result)
	if err != nil {
		return err
	}
	var data []byte
	switch *format {
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "png", "svg":
		if data, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(*format)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("graph: unknown format %q", *format)
	}

	if *out == "" {
		_, err = a.stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func cmdProviders(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("providers", a)
	if err := parse(fs, a, args); err != nil {
		return err
	}
	reg, err := a.providers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tACTIONS\tDESCRIPTION")
	for _, info := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.AppID, joinOrDash(info.Actions), info.Description)
	}
	return tw.Flush()
}

func cmdCredentials(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("credentials: expected add, list, invalidate or delete")
	}
	sub, args := args[0], args[1:]
	fs := newFlagSet("credentials "+sub, a)

	switch sub {
	case "add":
		id := fs.String("id", "", "credential id (required)")
		userID := fs.String("user", "", "owning user (required)")
		appID := fs.String("app", "", "app the credential is for")
		data := fs.String("data", "", "credential data as a JSON object (required)")
		invalid := fs.Bool("invalid", false, "store the credential marked invalid")
		if err := parse(fs, a, args); err != nil {
			return err
		}
		if *id == "" || *userID == "" || *data == "" {
			return errors.New("credentials add: -id, -user and -data are required")
		}
		var values map[string]any
		if err := json.Unmarshal([]byte(*data), &values); err != nil {
			return fmt.Errorf("credentials add: -data: %w", err)
		}
		codec, err := a.codec()
		if err != nil {
			return err
		}
		sealed, err := codec.Encrypt(values)
		if err != nil {
			return err
		}
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if err := s.PutCredential(ctx, &credentials.Credential{
			ID:            *id,
			UserID:        *userID,
			AppID:         *appID,
			IsValid:       !*invalid,
			EncryptedData: sealed,
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "credential %s stored\n", *id)
		return nil

	case "list":
		userID := fs.String("user", "", "only credentials of this user")
		if err := parse(fs, a, args); err != nil {
			return err
		}
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		list, err := s.ListCredentials(ctx, *userID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSER\tAPP\tVALID\tCREATED")
		for _, c := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.ID, c.UserID, orDash(c.AppID), c.IsValid, c.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	case "invalidate", "validate", "delete":
		id := fs.String("id", "", "credential id (required)")
		if err := parse(fs, a, args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("credentials %s: -id is required", sub)
		}
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		switch sub {
		case "delete":
			err = s.DeleteCredential(ctx, *id)
		default:
			err = s.SetCredentialValidity(ctx, *id, sub == "validate")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "credential %s: %s done\n", *id, sub)
		return nil

	default:
		return fmt.Errorf("credentials: unknown subcommand %q", sub)
	}
}

func cmdRuns(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("runs: expected list, show, events or replay")
	}
	sub, args := args[0], args[1:]
	fs := newFlagSet("runs "+sub, a)

	switch sub {
	case "list":
		userID := fs.String("user", "", "only runs of this user")
		status := fs.String("status", "", "only runs with this status: completed, aborted")
		limit := fs.Int("limit", 20, "maximum number of runs")
		if err := parse(fs, a, args); err != nil {
			return err
		}
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		runs, err := s.ListRuns(ctx, store.RunFilter{UserID: *userID, Status: schema.RunStatus(*status), Limit: *limit})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSER\tSTATUS\tSTARTED\tERROR")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.UserID, r.Status, r.StartedAt.Format(time.RFC3339), orDash(r.Error))
		}
		return tw.Flush()

	case "show", "events", "replay":
		id := fs.String("id", "", "run id (required)")
		if err := parse(fs, a, args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("runs %s: -id is required", sub)
		}
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		var v any
		switch sub {
		case "show":
			v, err = s.GetRun(ctx, *id)
		case "events":
			v, err = s.GetEvents(ctx, *id, 0)
		default:
			v, err = s.ReplayStatuses(ctx, *id)
		}
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, v)

	default:
		return fmt.Errorf("runs: unknown subcommand %q", sub)
	}
}

func cmdMCP(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("mcp", a)
	if err := parse(fs, a, args); err != nil {
		return err
	}
	v, err := a.validator(ctx)
	if err != nil {
		return err
	}
	exec, err := a.executor(ctx, true)
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)

	srv := mcp.NewServer(mcp.ServerDeps{
		Runner:    exec,
		Validator: v,
		Registry:  a.registry,
		Hub:       a.hub,
		Store:     a.store,
		Logger:    a.logger,
		Version:   version,
	})
	a.logger.Info("mcp server ready", slog.Int("providers", a.registry.Count()))
	return srv.Serve(ctx)
}

// --- helpers ---

func readDefinition(path string) (*schema.WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := schema.ParseDefinition(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}
