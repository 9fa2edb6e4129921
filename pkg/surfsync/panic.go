package surfsync

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/MixyLabs/surfsync/pkg/surfsync/util"
)

const (
	crashlogFilename        = "surfsync-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"

	crashlogRule = "-----------------------------------------------------------------"
)

// crashReport is everything the crashlog records about the engine when its
// loop panics
type crashReport struct {
	at       time.Time
	reason   any
	version  string
	provider string
	listen   int
	ticks    uint64
	inFlight *Inbound
	surfaces string
	stack    []byte
}

func (r crashReport) render() string {
	var b strings.Builder

	section := func(title string) {
		b.WriteString(crashlogRule + "\n" + title + "\n")
	}

	section("surfsync engine crashlog")
	b.WriteString("The engine loop panicked and surfsync exited. Surfaces keep their\n")
	b.WriteString("last displayed state and resync after a restart and /refresh.\n")
	b.WriteString("Report at https://github.com/MixyLabs/surfsync/issues/new\n")

	section("Engine")
	fmt.Fprintf(&b, "Time: %s\n", r.at.Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", r.version)
	fmt.Fprintf(&b, "Provider: %s\n", r.provider)
	fmt.Fprintf(&b, "Listen port: %d\n", r.listen)
	fmt.Fprintf(&b, "Ticks: %d\n", r.ticks)
	fmt.Fprintf(&b, "Panic: %v\n", r.reason)

	section("Message being handled")
	if r.inFlight != nil {
		fmt.Fprintf(&b, "%s from %s\n", r.inFlight.Msg.packet().String(), r.inFlight.Source)
	} else {
		b.WriteString("none, the panic came from a tick or a provider notification\n")
	}

	section("Surfaces")
	b.WriteString(r.surfaces + "\n")

	section("Stack trace")
	b.Write(r.stack)
	b.WriteString(crashlogRule + "\n")

	return b.String()
}

// writeCrashlog stores the report in dir and returns the file's path
func writeCrashlog(dir string, r crashReport) (string, error) {
	if err := util.EnsureDirExists(dir); err != nil {
		return "", fmt.Errorf("ensure crashlog dir exists: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf(crashlogFilename, r.at.Format(crashlogTimestampFormat)))
	if err := os.WriteFile(path, []byte(r.render()), 0644); err != nil {
		return "", fmt.Errorf("write crashlog: %w", err)
	}

	return path, nil
}

func (d *Surfsync) crashReport(reason any) crashReport {
	r := crashReport{
		at:       time.Now(),
		reason:   reason,
		version:  d.version,
		provider: d.configMan.Current().Provider,
		listen:   d.port,
		surfaces: "(engine not running)",
		stack:    debug.Stack(),
	}

	if d.port <= 0 {
		r.listen = d.configMan.Current().ListenPort
	}

	if d.engine != nil {
		r.ticks = d.engine.Ticks()
		r.surfaces = d.engine.SurfaceTable()
		if in, ok := d.engine.InFlight(); ok {
			r.inFlight = &in
		}
	}

	return r
}

// recoverFromPanic writes a crashlog for a panic in the engine loop and exits
func (d *Surfsync) recoverFromPanic() {
	reason := recover()
	if reason == nil {
		return
	}

	crashlogPath, err := writeCrashlog(logDirectory, d.crashReport(reason))
	if err != nil {
		panic(fmt.Errorf("log engine panic %v: %w", reason, err))
	}

	d.logger.Errorw("Engine loop panicked, crashing",
		"crashlogPath", crashlogPath,
		"error", reason)

	d.notifier.Notify("surfsync crashed",
		fmt.Sprintf("More details in %s", crashlogPath))

	d.logger.Errorw("Quitting", "exitCode", 1)
	os.Exit(1)
}
