// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command glslink links the shader stages a manifest describes and prints
// the resulting program interface.
//
// Usage:
//
//	glslink [options] <manifest.yaml>
//
// Examples:
//
//	glslink program.yaml                    # Link and print the program
//	glslink -limits gles.hcl program.yaml   # Check against other limits
//	glslink -gio fragment program.yaml      # Print Gio reflection of a stage
//	glslink -watch program.yaml             # Relink whenever an input changes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gogpu/glslink"
	"github.com/gogpu/glslink/config"
	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/link"
	"github.com/gogpu/glslink/manifest"
	"github.com/gogpu/glslink/reflection"
)

// exitError carries the process exit code of a failure.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func usageError(format string, args ...any) error {
	return &exitError{code: 2, msg: fmt.Sprintf(format, args...)}
}

var errLinkFailed = &exitError{code: 1, msg: "link failed"}

type options struct {
	manifest  string
	limits    string
	logFormat string
	logLevel  slog.Level
	gio       ir.ShaderStage
	watch     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "glslink: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// run is main without the process: it reads args, prints to stdout and
// logs to stderr.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	opts, err := parseArgs(args, stderr)
	if err != nil || opts == nil {
		return err
	}
	logger := newLogger(stderr, opts)

	if !opts.watch {
		return linkOnce(stdout, logger, opts)
	}
	return watch(ctx, stdout, logger, opts)
}

// parseArgs returns nil options when only help was requested.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("glslink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: glslink [options] <manifest.yaml>\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  glslink program.yaml                  Link and print the program\n")
		fmt.Fprintf(stderr, "  glslink -limits gles.hcl program.yaml Check against other limits\n")
		fmt.Fprintf(stderr, "  glslink -gio fragment program.yaml    Print Gio reflection of a stage\n")
		fmt.Fprintf(stderr, "  glslink -watch program.yaml           Relink whenever an input changes\n")
	}

	limits := fs.String("limits", "", "limits file (.hcl or .toml), overrides the manifest's")
	logFormat := fs.String("log-format", "text", "log output format: text or json")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn or error")
	gio := fs.String("gio", "", "print Gio shader reflection for the named stage")
	watchFlag := fs.Bool("watch", false, "relink when the manifest or limits change")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil
		}
		return nil, usageError("%v", err)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, usageError("expected exactly one manifest, got %d arguments", fs.NArg())
	}

	o := &options{
		manifest:  fs.Arg(0),
		limits:    *limits,
		logFormat: strings.ToLower(*logFormat),
		gio:       ir.StageCount,
		watch:     *watchFlag,
	}
	if o.logFormat != "text" && o.logFormat != "json" {
		return nil, usageError("invalid log-format %q: must be text or json", *logFormat)
	}
	if err := o.logLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return nil, usageError("invalid log-level %q: must be debug, info, warn or error", *logLevel)
	}
	if *gio != "" {
		stage, ok := ir.ParseShaderStage(*gio)
		if !ok {
			return nil, usageError("unknown shader stage %q", *gio)
		}
		o.gio = stage
	}
	return o, nil
}

func newLogger(w io.Writer, o *options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: o.logLevel}
	if o.logFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// linkOnce links the manifest and prints the program.
func linkOnce(out io.Writer, logger *slog.Logger, o *options) error {
	p, _, err := linkManifest(logger, o)
	if err != nil {
		return err
	}
	if err := printResult(out, p, o); err != nil {
		return err
	}
	if !p.LinkStatus() {
		return errLinkFailed
	}
	return nil
}

// linkManifest links the manifest and returns the program with the input
// files it was built from.
func linkManifest(logger *slog.Logger, o *options) (*link.Program, []string, error) {
	m, err := manifest.Load(o.manifest)
	if err != nil {
		return nil, []string{o.manifest}, err
	}
	dir := filepath.Dir(o.manifest)
	inputs := []string{o.manifest}

	lopts := link.Options{Logger: logger}
	switch {
	case o.limits != "":
		inputs = append(inputs, o.limits)
		limits, err := config.LoadLimits(o.limits)
		if err != nil {
			return nil, inputs, err
		}
		lopts.Limits = &limits
	case m.Limits != "":
		path := m.Limits
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		inputs = append(inputs, path)
	}

	p, err := glslink.LinkManifest(m, dir, lopts)
	if err != nil {
		return nil, inputs, fmt.Errorf("%s: %w", o.manifest, err)
	}
	logger.Info("program linked",
		"manifest", o.manifest,
		"status", p.LinkStatus(),
		"errors", p.Errors().Len(),
		"resources", len(p.Resources))
	return p, inputs, nil
}

func printResult(out io.Writer, p *link.Program, o *options) error {
	if o.gio == ir.StageCount || !p.LinkStatus() {
		return printProgram(out, p)
	}
	src, err := reflection.GioSources(p, o.gio, filepath.Base(o.manifest))
	if err != nil {
		return fmt.Errorf("gio reflection: %w", err)
	}
	return printGio(out, src)
}

// watch links once, then relinks after every change to the manifest or
// limits file until ctx is canceled. Failures are printed, not returned.
func watch(ctx context.Context, out io.Writer, logger *slog.Logger, o *options) error {
	relink := func() []string {
		p, inputs, err := linkManifest(logger, o)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return inputs
		}
		if err := printResult(out, p, o); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		return inputs
	}

	inputs := relink()
	w, err := config.NewWatcher(inputs...)
	if err != nil {
		return err
	}
	defer w.Close()
	w.Logger = logger

	err = w.Run(ctx, func() {
		logger.Debug("inputs changed, relinking", "manifest", o.manifest)
		relink()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
