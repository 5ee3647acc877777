package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/adapters"
	"github.com/dshills/dartdbg/internal/integration/debug/dap"
	"github.com/dshills/dartdbg/internal/integration/debug/host"
)

const attachTimeout = 10 * time.Second

// sessionFlags are the launch configuration flags shared by run and attach.
type sessionFlags struct {
	name         string
	debuggerType string
	flutterMode  string
	deviceID     string
	cwd          string
	noDebug      bool
	toolArgs     []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "Session name")
	flags.StringVar(&f.debuggerType, "debugger-type", "", "dart, pub-test, flutter, flutter-test or flutter-web (detected from pubspec.yaml if unset)")
	flags.StringVar(&f.flutterMode, "flutter-mode", "", "Flutter build mode: debug, profile or release")
	flags.StringVarP(&f.deviceID, "device", "d", "", "Flutter device id")
	flags.StringVar(&f.cwd, "cwd", "", "Working directory of the program")
	flags.BoolVar(&f.noDebug, "no-debug", false, "Run without debugging")
	flags.StringSliceVar(&f.toolArgs, "tool-arg", nil, "Extra argument for the dart or flutter tool")
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "run [flags] -- <program> [args...]",
		Short: "Launch a program under the debug adapter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(a *app) (adapters.Config, error) {
				cfg, err := sf.adapterConfig(a, args[0])
				if err != nil {
					return cfg, err
				}
				cfg.Request = adapters.RequestLaunch
				cfg.Args = args[1:]
				return cfg, nil
			})
		},
	}
	sf.register(cmd)
	return cmd
}

func newAttachCmd(opts *globalOptions) *cobra.Command {
	var (
		sf           sessionFlags
		addr         string
		vmServiceURI string
	)

	cmd := &cobra.Command{
		Use:   "attach --addr host:port [program]",
		Short: "Connect to a debug adapter that is already listening",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, port, err := splitAddr(addr)
			if err != nil {
				return err
			}
			program := ""
			if len(args) == 1 {
				program = args[0]
			}
			return runSession(cmd, opts, func(a *app) (adapters.Config, error) {
				cfg, err := sf.adapterConfig(a, program)
				if err != nil {
					return cfg, err
				}
				cfg.Request = adapters.RequestAttach
				cfg.VMServiceURI = vmServiceURI
				cfg.Host = h
				cfg.Port = port
				return cfg, nil
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "Address of the running debug adapter")
	cmd.Flags().StringVar(&vmServiceURI, "vm-service-uri", "", "VM service to attach to")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}

// adapterConfig merges the flags over the loaded configuration.
func (f *sessionFlags) adapterConfig(a *app, program string) (adapters.Config, error) {
	conf := a.store.Get()

	cfg := adapters.Config{
		Name:        f.name,
		Program:     program,
		ToolArgs:    f.toolArgs,
		Cwd:         f.cwd,
		NoDebug:     f.noDebug,
		FlutterMode: debug.FlutterMode(conf.Adapter.FlutterMode),
		DeviceID:    conf.Adapter.DeviceID,
	}
	if len(conf.Adapter.Command) > 0 {
		cfg.AdapterPath = conf.Adapter.Command[0]
		cfg.AdapterArgs = conf.Adapter.Command[1:]
	}
	if f.flutterMode != "" {
		cfg.FlutterMode = debug.FlutterMode(f.flutterMode)
	}
	if f.deviceID != "" {
		cfg.DeviceID = f.deviceID
	}
	if cfg.Cwd == "" && program != "" {
		if abs, err := filepath.Abs(program); err == nil {
			cfg.Cwd = filepath.Dir(abs)
		}
	}

	t, err := f.resolveDebuggerType(a, program)
	if err != nil {
		return cfg, err
	}
	cfg.DebuggerType = t
	return cfg, nil
}

func (f *sessionFlags) resolveDebuggerType(a *app, program string) (debug.DebuggerType, error) {
	if f.debuggerType != "" {
		t, ok := debug.ParseDebuggerType(f.debuggerType)
		if !ok {
			return debug.DebuggerUnknown, fmt.Errorf("unknown debugger type %q", f.debuggerType)
		}
		return t, nil
	}

	if program != "" {
		t, err := adapters.DetectDebuggerType(program)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, adapters.ErrNoPubspec) {
			a.log.Debug().Err(err).Str("program", program).Msg("could not detect debugger type")
		}
	}
	return a.store.Get().DebuggerType(), nil
}

func splitAddr(addr string) (string, int, error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port in --addr %q", addr)
	}
	if h == "" {
		h = "127.0.0.1"
	}
	return h, port, nil
}

// runSession builds the app, connects one adapter and blocks until the
// session ends or the process is interrupted.
func runSession(cmd *cobra.Command, opts *globalOptions, configure func(*app) (adapters.Config, error)) error {
	a, err := newApp(*opts, cmd.Flags(), os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := configure(a)
	if err != nil {
		return err
	}
	adapter, err := adapters.NewRegistry().Create(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.run(ctx, os.Stdin, func(ctx context.Context) (*host.Session, error) {
		transport, err := connect(ctx, adapter)
		if err != nil {
			return nil, err
		}
		return a.registry.Start(ctx, transport, adapter)
	})
}

func connect(ctx context.Context, adapter adapters.Adapter) (dap.Transport, error) {
	if adapter.GetConnectionType() == adapters.ConnectionSocket {
		cfg := adapter.Config()
		waitCtx, cancel := context.WithTimeout(ctx, attachTimeout)
		defer cancel()
		if err := adapters.WaitForPort(waitCtx, cfg.Host, cfg.Port); err != nil {
			return nil, err
		}
		return dap.DialSocket(ctx, adapter.GetAddress())
	}

	c, err := adapter.GetCommand()
	if err != nil {
		return nil, err
	}
	return dap.NewStdioTransport(c)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dartdbg", "config.toml")
}
