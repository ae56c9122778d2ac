// Package loader points the Vulkan loader at a portability driver on
// platforms without a native one.
//
// On such platforms (macOS by default) the driver library is looked up in
// a configurable list of directories, an ICD manifest naming it is written
// to a temporary file, and VK_ICD_FILENAMES / VK_DRIVER_FILES are set for
// the duration of instance creation only. The previous values are put
// back by the restore function returned from Session.Apply. Every loader
// honours these variables, including those that predate
// VK_LUNARG_direct_driver_loading.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Environment variables read by the Vulkan loader.
const (
	EnvICDFilenames = "VK_ICD_FILENAMES"
	EnvDriverFiles  = "VK_DRIVER_FILES"
)

// EnvSearchPath holds extra search directories, separated by the OS list
// separator. They are searched before the platform defaults.
const EnvSearchPath = "VUPSCALE_DRIVER_PATH"

// DefaultLibraryName is the portability driver searched for on macOS.
const DefaultLibraryName = "libMoltenVK.dylib"

const manifestPattern = "vupscale-icd-*.json"

// ErrDriverNotFound is returned when a portability driver is required but
// none of the search paths contains it.
var ErrDriverNotFound = errors.New("loader: portability driver not found")

// envMu serializes environment steering across concurrent operations.
var envMu sync.Mutex

// Config controls driver discovery.
type Config struct {
	// SearchPaths are directories, or direct paths to the library, tried
	// in order.
	SearchPaths []string

	// LibraryName is the file name looked up in each directory.
	LibraryName string

	// Required enables discovery. When false Prepare is a no-op and the
	// system loader configuration is used as is.
	Required bool

	// TempDir receives the manifest. Empty means os.TempDir().
	TempDir string
}

// DefaultConfig returns the configuration for the current platform.
func DefaultConfig() Config {
	return Config{
		SearchPaths: DefaultSearchPaths(),
		LibraryName: DefaultLibraryName,
		Required:    runtime.GOOS == "darwin",
	}
}

// DefaultSearchPaths returns EnvSearchPath entries followed by locations
// relative to the executable (application bundle layout) and common
// system install prefixes.
func DefaultSearchPaths() []string {
	var paths []string
	if env := os.Getenv(EnvSearchPath); env != "" {
		paths = append(paths, filepath.SplitList(env)...)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths,
			dir,
			filepath.Join(dir, "..", "Frameworks"),
			filepath.Join(dir, "..", "Resources"),
			filepath.Join(dir, "..", "Resources", "lib"),
		)
	}
	if sdk := os.Getenv("VULKAN_SDK"); sdk != "" {
		paths = append(paths, filepath.Join(sdk, "lib"))
	}
	return append(paths, "/opt/homebrew/lib", "/usr/local/lib")
}

// Find returns the absolute path of the first library found along
// cfg.SearchPaths.
func Find(cfg Config) (string, error) {
	name := cfg.LibraryName
	if name == "" {
		name = DefaultLibraryName
	}
	for _, p := range cfg.SearchPaths {
		if p == "" {
			continue
		}
		candidate := p
		if filepath.Base(p) != name {
			candidate = filepath.Join(p, name)
		}
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("loader: resolve %s: %w", candidate, err)
		}
		slogger().Debug("loader: driver found", "path", abs)
		return abs, nil
	}
	return "", fmt.Errorf("%w: %s not in %d search paths", ErrDriverNotFound, name, len(cfg.SearchPaths))
}

// Manifest is an installable client driver manifest.
type Manifest struct {
	FileFormatVersion string `json:"file_format_version"`
	ICD               ICD    `json:"ICD"`
}

// ICD describes the driver library.
type ICD struct {
	LibraryPath         string `json:"library_path"`
	APIVersion          string `json:"api_version"`
	IsPortabilityDriver bool   `json:"is_portability_driver"`
}

// NewManifest returns the manifest for a portability driver at library.
func NewManifest(library string) Manifest {
	return Manifest{
		FileFormatVersion: "1.0.0",
		ICD: ICD{
			LibraryPath:         library,
			APIVersion:          "1.3.0",
			IsPortabilityDriver: true,
		},
	}
}

// Session holds a synthesized manifest. A nil Session is valid and does
// nothing.
type Session struct {
	library  string
	manifest string
}

// Prepare locates the driver and writes its manifest. It returns a nil
// Session when cfg.Required is false.
func Prepare(cfg Config) (*Session, error) {
	if !cfg.Required {
		return nil, nil
	}
	library, err := Find(cfg)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(NewManifest(library), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("loader: encode manifest: %w", err)
	}
	f, err := os.CreateTemp(cfg.TempDir, manifestPattern)
	if err != nil {
		return nil, fmt.Errorf("loader: create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("loader: write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("loader: write manifest: %w", err)
	}

	slogger().Debug("loader: manifest written", "path", f.Name(), "library", library)
	return &Session{library: library, manifest: f.Name()}, nil
}

// Library returns the driver library path.
func (s *Session) Library() string {
	if s == nil {
		return ""
	}
	return s.library
}

// ManifestPath returns the manifest file path.
func (s *Session) ManifestPath() string {
	if s == nil {
		return ""
	}
	return s.manifest
}

// Apply points the loader environment at the manifest and returns a
// function that restores the previous environment. Other Apply calls
// block until restore runs. Restore is safe to call more than once.
func (s *Session) Apply() (restore func()) {
	if s == nil {
		return func() {}
	}
	envMu.Lock()
	saved := []savedVar{save(EnvICDFilenames), save(EnvDriverFiles)}
	os.Setenv(EnvICDFilenames, s.manifest)
	os.Setenv(EnvDriverFiles, s.manifest)
	slogger().Warn("loader: steering Vulkan loader through environment", "manifest", s.manifest)

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, v := range saved {
				v.restore()
			}
			envMu.Unlock()
		})
	}
}

// Close removes the manifest file.
func (s *Session) Close() error {
	if s == nil || s.manifest == "" {
		return nil
	}
	err := os.Remove(s.manifest)
	s.manifest = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loader: remove manifest: %w", err)
	}
	return nil
}

type savedVar struct {
	name  string
	value string
	set   bool
}

func save(name string) savedVar {
	value, set := os.LookupEnv(name)
	return savedVar{name: name, value: value, set: set}
}

func (v savedVar) restore() {
	if v.set {
		os.Setenv(v.name, v.value)
	} else {
		os.Unsetenv(v.name)
	}
}
