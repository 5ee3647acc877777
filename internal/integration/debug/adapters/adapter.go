// Package adapters provides debug adapter configurations for Dart and Flutter.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/dartdbg/internal/integration/debug"
)

// AdapterType identifies a debug adapter.
type AdapterType string

const (
	// AdapterDart is the adapter shipped with the Dart SDK (dart debug_adapter).
	AdapterDart AdapterType = "dart"
	// AdapterFlutter is the adapter shipped with the Flutter SDK (flutter debug_adapter).
	AdapterFlutter AdapterType = "flutter"
)

// Request types.
const (
	RequestLaunch = "launch"
	RequestAttach = "attach"
)

// Connection types.
const (
	ConnectionStdio  = "stdio"
	ConnectionSocket = "socket"
)

// Config is the configuration for a Dart or Flutter debug session.
type Config struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name"`

	// Request is the request type: "launch" or "attach".
	Request string `json:"request"`

	// DebuggerType selects the adapter and its test mode.
	DebuggerType debug.DebuggerType `json:"-"`

	// Program is the Dart entry point.
	Program string `json:"program,omitempty"`

	// Args are the program arguments.
	Args []string `json:"args,omitempty"`

	// ToolArgs are extra arguments for the dart or flutter tool.
	ToolArgs []string `json:"toolArgs,omitempty"`

	// Cwd is the working directory.
	Cwd string `json:"cwd,omitempty"`

	// Env are additional environment variables.
	Env map[string]string `json:"env,omitempty"`

	// NoDebug runs the program without a VM service connection.
	NoDebug bool `json:"noDebug,omitempty"`

	// FlutterMode is debug, profile or release. Flutter only.
	FlutterMode debug.FlutterMode `json:"flutterMode,omitempty"`

	// DeviceID targets a Flutter device.
	DeviceID string `json:"deviceId,omitempty"`

	// VMServiceURI is the VM service to attach to.
	VMServiceURI string `json:"vmServiceUri,omitempty"`

	// Host and Port address an adapter that is already listening.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// AdapterPath replaces the dart/flutter executable.
	AdapterPath string `json:"adapterPath,omitempty"`

	// AdapterArgs replace the default "debug_adapter" arguments.
	AdapterArgs []string `json:"adapterArgs,omitempty"`
}

// Adapter provides configuration and launch capabilities for a debug adapter.
type Adapter interface {
	// Type returns the adapter type.
	Type() AdapterType

	// Name returns a human-readable adapter name.
	Name() string

	// Config returns the session configuration.
	Config() Config

	// Validate validates the configuration.
	Validate() error

	// GetCommand returns the command to start the adapter.
	GetCommand() (*exec.Cmd, error)

	// GetLaunchArgs returns the arguments for the launch request.
	GetLaunchArgs() (any, error)

	// GetAttachArgs returns the arguments for the attach request.
	GetAttachArgs() (any, error)

	// GetConnectionType returns whether to use "stdio" or "socket".
	GetConnectionType() string

	// GetAddress returns the socket address (for socket connection).
	GetAddress() string
}

// Registry manages available debug adapters.
type Registry struct {
	adapters map[AdapterType]func(Config) (Adapter, error)
}

// NewRegistry creates a new adapter registry with the Dart and Flutter adapters.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[AdapterType]func(Config) (Adapter, error)),
	}

	r.Register(AdapterDart, NewDartAdapter)
	r.Register(AdapterFlutter, NewFlutterAdapter)

	return r
}

// Register registers an adapter factory.
func (r *Registry) Register(adapterType AdapterType, factory func(Config) (Adapter, error)) {
	r.adapters[adapterType] = factory
}

// Create creates the adapter for config.DebuggerType.
func (r *Registry) Create(config Config) (Adapter, error) {
	adapterType := ForDebuggerType(config.DebuggerType)
	factory, ok := r.adapters[adapterType]
	if !ok {
		return nil, fmt.Errorf("unknown adapter type: %s", adapterType)
	}
	return factory(config)
}

// AvailableAdapters returns the list of registered adapter types.
func (r *Registry) AvailableAdapters() []AdapterType {
	result := make([]AdapterType, 0, len(r.adapters))
	for t := range r.adapters {
		result = append(result, t)
	}
	return result
}

// ForDebuggerType returns the adapter that serves a debugger type.
func ForDebuggerType(t debug.DebuggerType) AdapterType {
	switch t {
	case debug.DebuggerFlutter, debug.DebuggerFlutterTest, debug.DebuggerFlutterWeb:
		return AdapterFlutter
	default:
		return AdapterDart
	}
}

// FindExecutable searches for an executable in PATH.
func FindExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// pubspec is the subset of pubspec.yaml needed to classify a project.
type pubspec struct {
	Name         string         `yaml:"name"`
	Dependencies map[string]any `yaml:"dependencies"`
}

// ErrNoPubspec is returned when no pubspec.yaml encloses a program.
var ErrNoPubspec = errors.New("no pubspec.yaml found")

// FindProjectRoot walks up from path to the nearest directory holding a
// pubspec.yaml.
func FindProjectRoot(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "pubspec.yaml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w above %s", ErrNoPubspec, path)
		}
		dir = parent
	}
}

// IsFlutterProject reports whether the pubspec.yaml in root depends on the
// Flutter SDK.
func IsFlutterProject(root string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(root, "pubspec.yaml"))
	if err != nil {
		return false, err
	}

	var spec pubspec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return false, fmt.Errorf("parse pubspec.yaml: %w", err)
	}
	_, ok := spec.Dependencies["flutter"]
	return ok, nil
}

// DetectDebuggerType classifies a program by its enclosing project and
// whether it is a test file.
func DetectDebuggerType(program string) (debug.DebuggerType, error) {
	root, err := FindProjectRoot(program)
	if err != nil {
		return debug.DebuggerUnknown, err
	}

	flutter, err := IsFlutterProject(root)
	if err != nil {
		return debug.DebuggerUnknown, err
	}

	test := isTestFile(program)
	switch {
	case flutter && test:
		return debug.DebuggerFlutterTest, nil
	case flutter:
		return debug.DebuggerFlutter, nil
	case test:
		return debug.DebuggerPubTest, nil
	default:
		return debug.DebuggerDart, nil
	}
}

func isTestFile(program string) bool {
	return strings.HasSuffix(program, "_test.dart")
}

// WaitForPort waits for a port to become available by polling with connection attempts.
// It returns nil when the port is accepting connections, or an error if the context
// is cancelled or times out.
func WaitForPort(ctx context.Context, host string, port int) error {
	address := net.JoinHostPort(host, fmt.Sprint(port))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for port %d: %w", port, ctx.Err())
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", address, 50*time.Millisecond)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}
