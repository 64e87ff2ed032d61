package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/internal/config"
	"github.com/wippyai/krakatau-bridge/service"
)

const usage = `Usage: krakatau [-config file] <command> [flags] [files]

Commands:
  dis [-out dir] [-roundtrip] [-no-short-code-attr] [-i] file.class...
        disassemble class files
  asm [-out dir] [-watch] [-i] file.j...
        assemble source files into class files
  run guest.wasm [args]
        run a WASI command module with the krakatau host module linked
  serve
        answer requests on <subject_prefix>.decompile and .assemble over NATS
  config
        print the effective configuration
`

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (default $"+config.PathEnv+")")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, *configPath, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, configPath, command string, args []string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}

	if command == "config" {
		fmt.Print(cfg.String())
		return 0, nil
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	var (
		out             = fs.String("out", "", "Output directory")
		roundtrip       = fs.Bool("roundtrip", false, "Disassemble in roundtrip mode")
		noShortCodeAttr = fs.Bool("no-short-code-attr", false, "Do not parse short Code attributes")
		interactive     = fs.Bool("i", false, "Show results in an interactive viewer")
		watch           = fs.Bool("watch", false, "Re-assemble when a source file changes")
	)
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}

	log, err := newLogger(cfg)
	if err != nil {
		return 1, fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	if *interactive {
		installLogger(zap.NewNop())
	} else {
		installLogger(log)
	}

	if command == "serve" {
		return 0, serve(ctx, cfg, log)
	}
	if command == "run" {
		if fs.NArg() == 0 {
			return 2, fmt.Errorf("run: no guest module")
		}
		return runGuest(ctx, cfg, fs.Arg(0), fs.Args()[1:], guestIO{os.Stdin, os.Stdout, os.Stderr})
	}

	paths := fs.Args()
	if len(paths) == 0 {
		return 2, fmt.Errorf("%s: no input files", command)
	}
	if *out != "" {
		if err := os.MkdirAll(*out, 0o755); err != nil {
			return 1, fmt.Errorf("create output directory: %w", err)
		}
	}

	ex, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return 1, err
	}
	defer closeBackend()

	r := &runner{ex: ex, stdout: os.Stdout, stderr: os.Stderr}
	if *interactive {
		r.stdout, r.stderr = io.Discard, io.Discard
	}

	var results []result
	switch command {
	case "dis":
		results = r.dis(ctx, paths, disOptions{out: *out, roundtrip: *roundtrip, noShortCodeAttr: *noShortCodeAttr})

	case "asm":
		dest := *out
		if dest == "" {
			dest = "."
		}
		results = r.asm(ctx, paths, dest)
		if *watch {
			log.Info("watching for changes", zap.Strings("files", paths))
			err := watchFiles(ctx, log, paths, func(path string) {
				r.asm(ctx, []string{path}, dest)
			})
			return 0, err
		}

	default:
		return 2, fmt.Errorf("unknown command %q", command)
	}

	if *interactive {
		if err := runInteractive(command+" "+strings.Join(paths, " "), results); err != nil {
			return 1, err
		}
	}
	if n := failures(results); n > 0 {
		return 1, fmt.Errorf("%d of %d file(s) failed", n, len(results))
	}
	return 0, nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Backend == config.BackendNATS {
		return fmt.Errorf("serve needs a local backend, not %q", cfg.Backend)
	}

	ex, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	nc, err := service.Connect(cfg.NATSURL, "krakatau")
	if err != nil {
		return err
	}
	defer nc.Close()

	svc := service.New(nc, ex, service.Options{Prefix: cfg.SubjectPrefix, Timeout: cfg.RequestTimeout})
	if err := svc.Start(ctx); err != nil {
		return err
	}
	log.Info("serving",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("prefix", cfg.SubjectPrefix),
		zap.String("backend", cfg.Backend))

	<-ctx.Done()
	log.Info("shutting down")
	return svc.Stop()
}
