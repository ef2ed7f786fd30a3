package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"go2tv.app/go2cast/devices"
	"go2tv.app/go2cast/internal/config"
)

type flagResults struct {
	route devices.Route
	url   string
	title string
	mime  string
	exit  bool
}

type flags struct {
	set     *flag.FlagSet
	url     *string
	target  *string
	title   *string
	mime    *string
	list    *bool
	version *bool
}

// loadRoutes is swapped in tests.
var loadRoutes = devices.LoadChromecastRoutes

var stdout io.Writer = os.Stdout

func newFlags() *flags {
	set := flag.NewFlagSet("go2cast", flag.ContinueOnError)
	set.SetOutput(io.Discard)

	return &flags{
		set:     set,
		url:     set.String("u", "", "HTTP URL to the media file."),
		target:  set.String("t", "", "Cast to a specific device, host or host:port."),
		title:   set.String("title", "", "Media title shown on the device. Defaults to the URL file name."),
		mime:    set.String("mime", "", "Media mime type. Detected from the stream when empty."),
		list:    set.Bool("l", false, "List all available Chromecast devices."),
		version: set.Bool("version", false, "Print version."),
	}
}

func usage() {
	f := newFlags()
	f.set.SetOutput(os.Stderr)
	fmt.Fprintf(os.Stderr, "Usage of go2cast:\n")
	f.set.PrintDefaults()
}

func processflags(args []string, conf *config.Config) (*flagResults, error) {
	f := newFlags()
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			err = errNoflag
		}
		return nil, errors.Wrap(err, "checkflags error")
	}

	res := &flagResults{}

	if *f.version {
		fmt.Fprintf(stdout, "Go2Cast Version: %s\n", version)
		res.exit = true
		return res, nil
	}

	if !*f.list && *f.url == "" {
		return nil, errors.Wrap(errNoflag, "checkflags error")
	}

	if *f.list {
		if err := checkLflag(f, conf); err != nil {
			return nil, errors.Wrap(err, "checkflags error")
		}
		res.exit = true
		return res, nil
	}

	if err := checkUflag(f, res); err != nil {
		return nil, errors.Wrap(err, "checkflags error")
	}

	if err := checkTflag(f, res, conf); err != nil {
		return nil, errors.Wrap(err, "checkflags error")
	}

	res.mime = *f.mime

	return res, nil
}

func checkUflag(f *flags, res *flagResults) error {
	u, err := url.ParseRequestURI(*f.url)
	if err != nil {
		return errors.Wrap(err, "checkUflag parse error")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("checkUflag error: unsupported scheme %q", u.Scheme)
	}

	res.url = *f.url
	res.title = *f.title
	if res.title == "" {
		res.title = mediaTitle(res.url)
	}

	return nil
}

func checkTflag(f *flags, res *flagResults, conf *config.Config) error {
	if *f.target != "" {
		route, err := devices.NewAddressRoute(*f.target)
		if err != nil {
			return errors.Wrap(err, "checkTflag parse error")
		}

		res.route = route
		return nil
	}

	routes, err := loadRoutes(conf.DiscoveryTimeout())
	if err != nil {
		return errors.Wrap(err, "checkTflag service loading error")
	}

	res.route = routes[0]
	return nil
}

func checkLflag(f *flags, conf *config.Config) error {
	flagsEnabled := 0
	f.set.Visit(func(*flag.Flag) {
		flagsEnabled++
	})

	if flagsEnabled > 1 {
		return errors.New("-l can't be combined with other flags")
	}

	routes, err := loadRoutes(conf.DiscoveryTimeout())
	if err != nil {
		return errors.Wrap(err, "checkLflag error")
	}

	boldStart := ""
	boldEnd := ""
	if runtime.GOOS == "linux" {
		boldStart = "\033[1m"
		boldEnd = "\033[0m"
	}

	fmt.Fprintln(stdout)
	for q, r := range routes {
		d, err := describe(r)
		if err != nil {
			continue
		}

		kind := "Chromecast"
		if d.IsAudioOnly {
			kind = "Chromecast Audio"
		}

		fmt.Fprintf(stdout, "%sDevice %v%s\n", boldStart, q+1, boldEnd)
		fmt.Fprintf(stdout, "%s--------%s\n", boldStart, boldEnd)
		fmt.Fprintf(stdout, "%sName:%s    %s\n", boldStart, boldEnd, d.FriendlyName)
		fmt.Fprintf(stdout, "%sModel:%s   %s (%s)\n", boldStart, boldEnd, d.ModelName, kind)
		fmt.Fprintf(stdout, "%sAddress:%s %s\n", boldStart, boldEnd, d.Addr())
		fmt.Fprintln(stdout)
	}

	return nil
}
