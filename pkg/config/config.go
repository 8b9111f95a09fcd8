// Package config reads screening run files. A run file is an INI-style
// gcfg document:
//
//	[run]
//	plan = plan.lisp
//	entries = entries.fcsv
//	targets = targets.fcsv
//
//	[frame]
//	origin = -90 -126 -72
//	spacing = 1 1 1
//
//	[volume "r_hippo"]
//	path = r_hippo.vox
//	nx = 64
//	ny = 64
//	nz = 64
//
// Relative paths are resolved against the directory of the run file.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/chazu/trajscreen/pkg/voxfile"
	"gopkg.in/gcfg.v1"
)

// Extractor names accepted by [run] extractor.
const (
	ExtractorSDFX  = "sdfx"
	ExtractorVoxel = "voxel"
)

// DefaultChunk is the chunk size used when [run] chunk is unset.
const DefaultChunk = 256

// Vec is a three component vector written as "x y z".
type Vec kernel.Point3

// UnmarshalText parses "x y z".
func (v *Vec) UnmarshalText(b []byte) error {
	fields := strings.Fields(string(b))
	if len(fields) != 3 {
		return fmt.Errorf("expected three components, got %q", string(b))
	}
	var xyz [3]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		xyz[i] = x
	}
	*v = Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	return nil
}

// Duration is a time.Duration written in time.ParseDuration syntax.
type Duration time.Duration

// UnmarshalText parses a duration such as "90s" or "5m".
func (d *Duration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}

// RunConfig is the [run] section.
type RunConfig struct {
	// Required
	Plan, Entries, Targets string

	// Optional
	Workers    int
	Chunk      int
	Extractor  string
	Cells      int
	Exhaustive bool
	Budget     Duration
	Records    string
	AllRecords bool `gcfg:"all-records"`
	Report     string
	Metrics    string
}

func (run *RunConfig) CheckInit(dir string) error {
	required := []struct {
		name  string
		value string
	}{{"plan", run.Plan}, {"entries", run.Entries}, {"targets", run.Targets}}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("[run] %s must be set", r.name)
		}
	}
	if run.Workers < 0 {
		return fmt.Errorf("[run] workers must be non-negative, but is %d", run.Workers)
	}
	if run.Chunk == 0 {
		run.Chunk = DefaultChunk
	} else if run.Chunk < 0 {
		return fmt.Errorf("[run] chunk must be positive, but is %d", run.Chunk)
	}
	switch strings.ToLower(run.Extractor) {
	case "":
		run.Extractor = ExtractorSDFX
	case ExtractorSDFX, ExtractorVoxel:
		run.Extractor = strings.ToLower(run.Extractor)
	default:
		return fmt.Errorf("[run] extractor must be one of [ %s | %s ], but is %q",
			ExtractorSDFX, ExtractorVoxel, run.Extractor)
	}
	if run.Cells < 0 {
		return fmt.Errorf("[run] cells must be non-negative, but is %d", run.Cells)
	}
	if run.Budget < 0 {
		return fmt.Errorf("[run] budget must be non-negative, but is %s", time.Duration(run.Budget))
	}

	for _, p := range []*string{
		&run.Plan, &run.Entries, &run.Targets, &run.Records, &run.Report, &run.Metrics,
	} {
		*p = resolve(dir, *p)
	}
	return nil
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level  string
	Format string
}

func (l *LogConfig) CheckInit() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if _, err := l.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case "":
		l.Format = "text"
	case "text", "json":
		l.Format = strings.ToLower(l.Format)
	default:
		return fmt.Errorf("[log] format must be one of [ text | json ], but is %q", l.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("[log] level: %w", err)
	}
	return level, nil
}

// FrameConfig is the [frame] section: the placement of the voxel grid in
// the physical frame the fiducials are written in. Voxel (i, j, k) sits at
// origin + (i, j, k) * spacing.
type FrameConfig struct {
	Origin  Vec
	Spacing Vec
}

func (f *FrameConfig) CheckInit() error {
	if f.Spacing == (Vec{}) {
		f.Spacing = Vec{X: 1, Y: 1, Z: 1}
	}
	if f.Spacing.X <= 0 || f.Spacing.Y <= 0 || f.Spacing.Z <= 0 {
		return fmt.Errorf("[frame] spacing components must be positive, but are %g %g %g",
			f.Spacing.X, f.Spacing.Y, f.Spacing.Z)
	}
	return nil
}

// ToVoxel converts a physical point into voxel index coordinates.
func (f *FrameConfig) ToVoxel(p kernel.Point3) kernel.Point3 {
	return kernel.Point3{
		X: (p.X - f.Origin.X) / f.Spacing.X,
		Y: (p.Y - f.Origin.Y) / f.Spacing.Y,
		Z: (p.Z - f.Origin.Z) / f.Spacing.Z,
	}
}

// ToVoxelAll converts every point in ps.
func (f *FrameConfig) ToVoxelAll(ps []kernel.Point3) []kernel.Point3 {
	out := make([]kernel.Point3, len(ps))
	for i, p := range ps {
		out[i] = f.ToVoxel(p)
	}
	return out
}

// VolumeConfig is one [volume "key"] section.
type VolumeConfig struct {
	Path       string
	Nx, Ny, Nz int
}

func (v *VolumeConfig) CheckInit(name, dir string) error {
	if v.Path == "" {
		return fmt.Errorf("[volume %q] path must be set", name)
	}
	if v.Nx <= 0 || v.Ny <= 0 || v.Nz <= 0 {
		return fmt.Errorf("[volume %q] nx, ny and nz must be positive, but are %d %d %d",
			name, v.Nx, v.Ny, v.Nz)
	}
	v.Path = resolve(dir, v.Path)
	return nil
}

// Config is a complete run file.
type Config struct {
	Run    RunConfig
	Log    LogConfig
	Frame  FrameConfig
	Volume map[string]*VolumeConfig
}

// Read parses and checks the run file at path.
func Read(path string) (*Config, error) {
	con := &Config{}
	if err := gcfg.ReadFileInto(con, path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := con.CheckInit(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return con, nil
}

// Parse parses and checks run file text. Relative paths resolve against dir.
func Parse(src, dir string) (*Config, error) {
	con := &Config{}
	if err := gcfg.ReadStringInto(con, src); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := con.CheckInit(dir); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return con, nil
}

// CheckInit fills defaults and validates every section.
func (con *Config) CheckInit(dir string) error {
	if err := con.Run.CheckInit(dir); err != nil {
		return err
	}
	if err := con.Log.CheckInit(); err != nil {
		return err
	}
	if err := con.Frame.CheckInit(); err != nil {
		return err
	}
	for name, v := range con.Volume {
		if err := v.CheckInit(name, dir); err != nil {
			return err
		}
	}
	return nil
}

// Volumes returns a volume source backed by the [volume] sections.
func (con *Config) Volumes() *voxfile.Dir {
	d := &voxfile.Dir{Entries: make(map[string]voxfile.Entry, len(con.Volume))}
	for name, v := range con.Volume {
		d.Entries[name] = voxfile.Entry{Path: v.Path, Dims: [3]int{v.Nx, v.Ny, v.Nz}}
	}
	return d
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
