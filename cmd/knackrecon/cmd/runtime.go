package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
	"github.com/edukit/knackrecon/internal/report"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// confirmReader supplies typed confirmations, can be overridden in tests
var confirmReader io.Reader = os.Stdin

// session bundles everything a command needs after startup.
type session struct {
	cfg    *config.Config
	log    *logger.Logger
	client *knack.Client
	runID  string

	scopeID   string
	scopeName string
}

// setup loads and validates configuration, builds the logger and client,
// resolves the establishment scope when one was given, and assigns the
// run ID that threads through logs and report filenames.
func setup(ctx context.Context) (*session, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.PageSize, overrides.RatePerSec, overrides.KeepPolicy)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	opts := []knack.Option{
		knack.WithPageSize(cfg.Processing.PageSize),
		knack.WithRate(cfg.Processing.RatePerSecond),
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, knack.WithBaseURL(cfg.API.BaseURL))
	}
	client, err := knack.NewClient(cfg.API.AppID, cfg.API.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	runID := uuid.NewString()
	rt := &session{
		cfg:    cfg,
		log:    log.WithRun(runID),
		client: client,
		runID:  runID,
	}

	if establishment != "" {
		id, err := client.ResolveScope(ctx,
			cfg.Establishment.Object, cfg.Establishment.NameField, establishment)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve establishment %q: %w", establishment, err)
		}
		rt.scopeID = id
		rt.scopeName = client.ScopeName(ctx,
			cfg.Establishment.Object, cfg.Establishment.NameField, id)
		rt.log.Infow("Resolved establishment scope", "id", id, "name", rt.scopeName)
	}

	return rt, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

// fetchIndex fetches one collection (scoped to the establishment when set)
// and indexes it. connectionField may be empty.
func (rt *session) fetchIndex(ctx context.Context, name, connectionField string) (*index.Index, error) {
	spec, ok := rt.cfg.Collection(name)
	if !ok {
		return nil, fmt.Errorf("collection %q not found in configuration", name)
	}

	records, err := rt.fetchRecords(ctx, name)
	if err != nil {
		return nil, err
	}
	rt.log.WithCollection(name).Infow("Fetched records", "count", len(records))

	return index.Build(name, spec, records, connectionField), nil
}

// keep returns the configured duplicate keep policy.
func (rt *session) keep() index.KeepPolicy {
	if rt.cfg.Processing.KeepPolicy == string(index.KeepNewest) {
		return index.KeepNewest
	}
	return index.KeepOldest
}

// confirm prompts for the exact phrase and reports whether it was typed.
// An unreadable stdin counts as refusal.
func confirm(phrase, prompt string) bool {
	fmt.Fprintf(outputWriter, "%s\nType %s to proceed: ", prompt, phrase)
	reader := bufio.NewReader(confirmReader)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == phrase
}

// exportReport writes findings as CSV under the report directory with the
// run ID in the filename. A nil error and empty path means reporting is
// disabled.
func (rt *session) exportReport(kind string, rows []report.Row) (string, error) {
	if reportDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(reportDir, fmt.Sprintf("%s_%s.csv", kind, rt.runID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := report.ExportCSV(f, rows); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
