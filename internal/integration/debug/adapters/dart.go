package adapters

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/dshills/dartdbg/internal/integration/debug"
)

// DartAdapter implements the Adapter interface for the SDK debug adapters.
// The same launch arguments serve both tools; only the executable and the
// Flutter-specific tool arguments differ.
type DartAdapter struct {
	config  Config
	tool    string
	adapter AdapterType
}

// NewDartAdapter creates an adapter backed by "dart debug_adapter".
func NewDartAdapter(config Config) (Adapter, error) {
	if config.DebuggerType == debug.DebuggerUnknown {
		config.DebuggerType = debug.DebuggerDart
	}
	return &DartAdapter{config: config, tool: "dart", adapter: AdapterDart}, nil
}

// NewFlutterAdapter creates an adapter backed by "flutter debug_adapter".
func NewFlutterAdapter(config Config) (Adapter, error) {
	if config.DebuggerType == debug.DebuggerUnknown {
		config.DebuggerType = debug.DebuggerFlutter
	}
	if config.FlutterMode == "" {
		config.FlutterMode = debug.FlutterModeDebug
	}
	return &DartAdapter{config: config, tool: "flutter", adapter: AdapterFlutter}, nil
}

// Type returns the adapter type.
func (a *DartAdapter) Type() AdapterType {
	return a.adapter
}

// Name returns a human-readable adapter name.
func (a *DartAdapter) Name() string {
	if a.adapter == AdapterFlutter {
		return "Flutter"
	}
	return "Dart"
}

// Config returns the session configuration.
func (a *DartAdapter) Config() Config {
	return a.config
}

// Validate validates the configuration.
func (a *DartAdapter) Validate() error {
	switch a.config.Request {
	case RequestLaunch, "":
		if a.config.Program == "" {
			return fmt.Errorf("program is required for launch request")
		}
	case RequestAttach:
		if a.config.VMServiceURI == "" && a.adapter == AdapterDart {
			return fmt.Errorf("vmServiceUri is required for dart attach request")
		}
	default:
		return fmt.Errorf("invalid request type: %s", a.config.Request)
	}

	if a.adapter == AdapterFlutter {
		switch a.config.FlutterMode {
		case debug.FlutterModeDebug, debug.FlutterModeProfile, debug.FlutterModeRelease:
		default:
			return fmt.Errorf("invalid flutter mode: %s", a.config.FlutterMode)
		}
	}
	return nil
}

// GetCommand returns the command to start the adapter.
func (a *DartAdapter) GetCommand() (*exec.Cmd, error) {
	path := a.config.AdapterPath
	if path == "" {
		var err error
		path, err = FindExecutable(a.tool)
		if err != nil {
			return nil, fmt.Errorf("%s SDK not found: %w", a.Name(), err)
		}
	}

	args := a.config.AdapterArgs
	if len(args) == 0 {
		args = []string{"debug_adapter"}
		if a.isTest() {
			args = append(args, "--test")
		}
	}

	cmd := exec.Command(path, args...)

	if a.config.Cwd != "" {
		cmd.Dir = a.config.Cwd
	}

	// Inherit parent environment and add/override with config values
	cmd.Env = os.Environ()
	for k, v := range a.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	return cmd, nil
}

func (a *DartAdapter) isTest() bool {
	return a.config.DebuggerType == debug.DebuggerPubTest || a.config.DebuggerType == debug.DebuggerFlutterTest
}

func (a *DartAdapter) commonArgs() map[string]any {
	args := map[string]any{
		"name":                     a.config.Name,
		"noDebug":                  a.config.NoDebug,
		"sendLogsToClient":         true,
		"sendCustomProgressEvents": true,
	}

	if a.config.Cwd != "" {
		args["cwd"] = a.config.Cwd
	}

	if len(a.config.Env) > 0 {
		args["env"] = a.config.Env
	}

	if toolArgs := a.toolArgs(); len(toolArgs) > 0 {
		args["toolArgs"] = toolArgs
	}

	return args
}

func (a *DartAdapter) toolArgs() []string {
	var args []string
	if a.adapter == AdapterFlutter {
		if a.config.DeviceID != "" {
			args = append(args, "-d", a.config.DeviceID)
		}
		switch a.config.FlutterMode {
		case debug.FlutterModeProfile:
			args = append(args, "--profile")
		case debug.FlutterModeRelease:
			args = append(args, "--release")
		}
	}
	return append(args, a.config.ToolArgs...)
}

// GetLaunchArgs returns the arguments for the launch request.
func (a *DartAdapter) GetLaunchArgs() (any, error) {
	args := a.commonArgs()
	args["program"] = a.config.Program

	if len(a.config.Args) > 0 {
		args["args"] = a.config.Args
	}

	return args, nil
}

// GetAttachArgs returns the arguments for the attach request.
func (a *DartAdapter) GetAttachArgs() (any, error) {
	args := a.commonArgs()

	if a.config.VMServiceURI != "" {
		args["vmServiceUri"] = a.config.VMServiceURI
	}
	if a.config.Program != "" {
		args["program"] = a.config.Program
	}

	return args, nil
}

// GetConnectionType returns whether to use "stdio" or "socket".
func (a *DartAdapter) GetConnectionType() string {
	if a.config.Port > 0 {
		return ConnectionSocket
	}
	return ConnectionStdio
}

// GetAddress returns the socket address.
func (a *DartAdapter) GetAddress() string {
	host := a.config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(a.config.Port))
}
