package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/blackwell-systems/datapkg/internal/config"
	"github.com/blackwell-systems/datapkg/internal/credential"
	"github.com/blackwell-systems/datapkg/internal/output"
	"github.com/blackwell-systems/datapkg/internal/registry"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// Command is one parsed datapkg invocation. The set of commands is closed:
// Dispatcher.Run handles every implementation.
type Command interface {
	command()
}

// Dispatcher runs commands against the configured credential store,
// package store and registry.
type Dispatcher struct {
	cfg         *config.Config
	creds       *credential.Store
	packages    *store.Store
	client      *http.Client
	logger      *slog.Logger
	in          *bufio.Reader
	out         io.Writer
	errOut      io.Writer
	progress    bool
	openBrowser func(url string) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIO sets the streams commands read from and print to.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(d *Dispatcher) {
		d.in = bufio.NewReader(in)
		d.out = out
		d.errOut = errOut
	}
}

// WithLogger sets the diagnostic logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithHTTPClient replaces the client used for registry calls and transfers.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithProgress enables transfer progress bars on the error stream.
func WithProgress(enabled bool) Option {
	return func(d *Dispatcher) { d.progress = enabled }
}

// WithBrowser sets how login opens the registry's login page.
func WithBrowser(open func(url string) error) Option {
	return func(d *Dispatcher) { d.openBrowser = open }
}

// NewDispatcher wires the components described by cfg.
func NewDispatcher(cfg *config.Config, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:         cfg,
		logger:      slog.Default(),
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		errOut:      os.Stderr,
		openBrowser: openBrowser,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: cfg.Timeout}
	}

	d.creds = credential.New(cfg.AuthFile(), cfg.RegistryURL,
		credential.WithHTTPClient(d.client),
		credential.WithLogger(d.logger),
	)

	roots := cfg.StoreRoots()
	storeOpts := []store.Option{
		store.WithReadOnlyRoots(roots[1:]...),
		store.WithHTTPClient(d.client),
		store.WithLogger(d.logger),
	}
	if d.progress {
		storeOpts = append(storeOpts, store.WithProgress(d.newProgress))
	}
	packages, err := store.Open(roots[0], storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open package store: %w", err)
	}
	d.packages = packages

	return d, nil
}

// Run executes cmd.
func (d *Dispatcher) Run(ctx context.Context, cmd Command) error {
	d.logger.Debug("running command", "command", fmt.Sprintf("%T", cmd))

	switch c := cmd.(type) {
	case *LoginCommand:
		return d.login(ctx, c)
	case *LogoutCommand:
		return d.logout(c)
	case *StatusCommand:
		return d.status(c)
	case *BuildCommand:
		return d.build(c)
	case *PushCommand:
		return d.push(ctx, c)
	case *InstallCommand:
		return d.install(ctx, c)
	case *AccessListCommand:
		return d.accessList(ctx, c)
	case *AccessAddCommand:
		return d.accessAdd(ctx, c)
	case *AccessRemoveCommand:
		return d.accessRemove(ctx, c)
	case *ListCommand:
		return d.list(c)
	case *InspectCommand:
		return d.inspect(c)
	case *RemoveCommand:
		return d.remove(c)
	case *HistoryCommand:
		return d.history(c)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

// registry opens a session, refreshing credentials if needed, and returns
// a registry client bound to it.
func (d *Dispatcher) registry(ctx context.Context) (*registry.Client, error) {
	sess, err := d.creds.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		d.logger.Debug("no credentials, registry calls are anonymous")
	}
	return registry.New(d.cfg.RegistryURL, sess,
		registry.WithUploadClient(d.client),
		registry.WithLogger(d.logger),
	), nil
}

func (d *Dispatcher) newProgress(description string, total int64) store.ProgressWriter {
	p := output.NewProgress(total, description)
	p.SetWriter(d.errOut)
	return p
}

// spin shows a spinner on the error stream while fn runs, when progress
// output is enabled.
func (d *Dispatcher) spin(message string, fn func() error) error {
	if !d.progress {
		return fn()
	}
	s := output.NewSpinner(message)
	s.SetWriter(d.errOut)
	s.Start()
	defer s.Stop()
	return fn()
}

// confirm asks a y/n question on the output stream.
func (d *Dispatcher) confirm(question string) bool {
	fmt.Fprint(d.out, question)
	response, err := d.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(response), "y")
}

// readLine reads one trimmed line of input.
func (d *Dispatcher) readLine() (string, error) {
	line, err := d.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// openIndex opens the history index. With create false a missing index is
// reported as (nil, nil).
func (d *Dispatcher) openIndex(create bool) (*store.Index, error) {
	path := d.cfg.IndexPath()
	if create {
		if err := os.MkdirAll(d.cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	idx, err := store.OpenIndex(path)
	if err != nil {
		return nil, err
	}
	if err := idx.CreateSchema(); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

// record appends an event to the history index. The package store stays
// authoritative, so failures here are logged rather than returned.
func (d *Dispatcher) record(action store.Action, e *store.Entry) {
	ev := &store.Event{Package: e.ID(), Action: action}
	var rec *store.PackageRecord
	if action != store.ActionRemove {
		hash, _ := e.Hash()
		size, _ := e.Size()
		updated, _ := e.UpdatedAt()
		ev.Hash, ev.SizeBytes = hash, size
		rec = &store.PackageRecord{ID: e.ID(), Hash: hash, SizeBytes: size, Root: e.Root(), UpdatedAt: updated}
	}

	idx, err := d.openIndex(true)
	if err != nil {
		d.logger.Warn("history index unavailable", "error", err)
		return
	}
	defer idx.Close()

	if err := idx.Record(ev, rec); err != nil {
		d.logger.Warn("failed to record history", "package", e.ID().String(), "action", string(action), "error", err)
	}
}
