package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/devices"
	"go2tv.app/go2cast/internal/castsession"
	"go2tv.app/go2cast/internal/config"
	"go2tv.app/go2cast/internal/events"
	"go2tv.app/go2cast/internal/interactive"
	"go2tv.app/go2cast/internal/utils"
)

var (
	// version is set at build time with -ldflags "-X main.version=...".
	version = "dev"

	errNoflag     = errors.New("no flag used")
	errLoadFailed = errors.New("the cast device did not accept the media")
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errNoflag) {
			usage()
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	exitCTX, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.GetAppConfig()
	if err != nil {
		return errors.Wrap(err, "settings error")
	}

	flagRes, err := processflags(os.Args[1:], conf)
	if err != nil {
		return err
	}

	if flagRes.exit {
		return nil
	}

	logOutput, closeLog, err := openLog(conf)
	if err != nil {
		return errors.Wrap(err, "log file error")
	}
	defer closeLog()

	mediaType := flagRes.mime
	if mediaType == "" {
		mediaType, err = utils.DetectMIME(exitCTX, flagRes.url)
		if err != nil {
			return errors.Wrap(err, "media type error")
		}
	}

	bus := events.New()

	connector := castprotocol.NewConnector(castprotocol.ClientConfig{
		ConnectionRetries: conf.ConnectionRetries,
		PollInterval:      conf.PollInterval(),
	})

	// The session outlives exitCTX so End can still reach the device on SIGINT.
	sess, err := castsession.New(context.Background(), castprotocol.NetworkPlatform{}, flagRes.route,
		castsession.WithConnector(connector),
		castsession.WithEventBus(bus),
		castsession.WithCommandTimeout(conf.CommandTimeout()),
		castsession.WithReceiverAppID(conf.ReceiverAppID),
		castsession.WithLogOutput(logOutput),
	)
	if err != nil {
		return errors.Wrap(err, "cast session error")
	}
	defer sess.Close()

	if err := load(exitCTX, sess, flagRes.title, flagRes.url, mediaType); err != nil {
		return err
	}

	scr, err := interactive.InitChromecastScreen(sess, cancel)
	if err != nil {
		endSession(sess)
		return errors.Wrap(err, "interactive screen error")
	}
	bus.Subscribe(interactive.SubscriberID, scr.OnEvent)
	defer bus.Unsubscribe(interactive.SubscriberID)

	scrErr := make(chan error, 1)
	go scr.InterInit(flagRes.title, scrErr)

	select {
	case <-exitCTX.Done():
	case err := <-scrErr:
		endSession(sess)
		return err
	}

	scr.Fini()
	if sess.State() == castsession.Active {
		endSession(sess)
	}

	return nil
}

func load(ctx context.Context, p castsession.MediaPlayer, title, mediaURL, mediaType string) error {
	loaded := make(chan error, 1)
	p.Load(title, mediaURL, mediaType, castsession.CallbackFuncs{
		Success: func(any) { loaded <- nil },
		Error:   func(any) { loaded <- errLoadFailed },
	})

	select {
	case err := <-loaded:
		return errors.Wrap(err, "load error")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endSession(p castsession.MediaPlayer) {
	done := make(chan struct{})
	p.End(castsession.CallbackFuncs{
		Success: func(any) { close(done) },
		Error:   func(any) { close(done) },
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func openLog(conf *config.Config) (io.Writer, func(), error) {
	if !conf.Debug || conf.LogFile == "" {
		return nil, func() {}, nil
	}

	f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { f.Close() }, nil
}

// mediaTitle derives a title from the last path element of u.
func mediaTitle(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return u
	}
	return path.Base(parsed.Path)
}

func describe(r devices.Route) (*devices.CastDevice, error) {
	d, err := r.CastDevice()
	if err != nil {
		return nil, errors.Wrapf(err, "route %s", r.ID())
	}
	return d, nil
}
