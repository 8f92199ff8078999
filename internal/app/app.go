package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/plgd-dev/cinfo/internal/config"
	"github.com/plgd-dev/cinfo/internal/console"
	"github.com/plgd-dev/cinfo/internal/history"
	"github.com/plgd-dev/cinfo/internal/mote"
)

// App runs the probe sequence: print where it runs from, query every mote
// once, print the decoded payloads and wait for the quit command.
type App struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	client     mote.Client
	store      history.Store
	in         io.Reader
	out        io.Writer
	importPath string
	terminate  func() error
}

type Option func(*App)

func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

func WithImportPath(path string) Option {
	return func(a *App) {
		a.importPath = path
	}
}

// WithTerminator sets what runs after the quit command.
func WithTerminator(f func() error) Option {
	return func(a *App) {
		a.terminate = f
	}
}

func New(cfg *config.Config, log *zap.SugaredLogger, client mote.Client, store history.Store, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		log:    log,
		client: client,
		store:  store,
		in:     os.Stdin,
		out:    os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.store == nil {
		a.store, _ = history.NewStore("none", "")
	}
	return a
}

func (a *App) Run(ctx context.Context) error {
	if _, err := fmt.Fprintln(a.out, a.importPath); err != nil {
		return err
	}

	uris := make([]string, 0, len(a.cfg.Motes))
	for _, addr := range a.cfg.Motes {
		uri := mote.FormatURI(a.cfg.Scheme, addr, a.cfg.MotePort, a.cfg.Resource)
		uris = append(uris, uri)
		if _, err := fmt.Fprintln(a.out, uri); err != nil {
			return err
		}
	}

	readings, err := a.probeAll(ctx, uris)
	if err != nil {
		return err
	}
	if err := a.print(readings); err != nil {
		return err
	}
	a.record(readings)

	if err := console.WaitForQuit(ctx, a.in, a.out, console.Prompt); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(a.out, console.Farewell); err != nil {
		return err
	}
	return a.shutdown()
}

func (a *App) print(readings []mote.Reading) error {
	if a.cfg.Output == config.OutputYAML {
		enc := yaml.NewEncoder(a.out)
		if err := enc.Encode(readings); err != nil {
			return fmt.Errorf("cannot encode readings: %w", err)
		}
		return enc.Close()
	}
	for _, r := range readings {
		if _, err := fmt.Fprintln(a.out, r.Text); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) record(readings []mote.Reading) {
	for _, r := range readings {
		prev, found, err := a.store.Last(r.Mote)
		if err != nil {
			a.log.Warnw("cannot load previous reading", "mote", r.Mote, "error", err)
		} else if found {
			a.log.Infow("previous reading", "mote", r.Mote, "text", prev.Text, "receivedAt", prev.ReceivedAt, "changed", prev.Text != r.Text)
		}
		if err := a.store.Record(r); err != nil {
			a.log.Warnw("cannot record reading", "mote", r.Mote, "error", err)
		}
	}
}

// shutdown leaves the client handle open unless release_client is set; the
// process teardown reclaims the socket.
func (a *App) shutdown() error {
	if a.cfg.ReleaseClient {
		if err := a.client.Close(); err != nil {
			a.log.Warnw("cannot release coap client", "error", err)
		}
	} else {
		a.log.Warnw("exiting without releasing coap client", "localPort", a.cfg.LocalPort)
	}
	if a.terminate == nil {
		return nil
	}
	return a.terminate()
}
