package telemetry

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelDefinition describes which engine operations the scheduler runs for
// one channel. Definitions are loaded at startup and fingerprinted so a changed
// file is visible in logs.
type ChannelDefinition struct {
	ChannelID        int64
	Description      string
	Granularities    []Granularity
	AnomalyFields    []FieldNumber
	AnomalyThreshold float64
	LookbackDays     int
	Fingerprint      string
}

// rawChannel is the on-disk YAML shape.
type rawChannel struct {
	ChannelID        int64    `yaml:"channel_id"`
	Description      string   `yaml:"description"`
	Granularities    []string `yaml:"granularities"` // default HOURLY, DAILY
	AnomalyFields    []int    `yaml:"anomaly_fields"`
	AnomalyThreshold *float64 `yaml:"anomaly_threshold"` // default DefaultZThreshold
	LookbackDays     int      `yaml:"lookback_days"`
}

// FileSystemChannelRepository loads one channel definition per *.yaml file in a
// directory. No hot reload.
type FileSystemChannelRepository struct {
	dir      string
	channels map[int64]ChannelDefinition
}

// NewFileSystemChannelRepository eagerly loads all definitions from dir.
// A missing directory yields zero channels.
func NewFileSystemChannelRepository(dir string) (*FileSystemChannelRepository, error) {
	repo := &FileSystemChannelRepository{
		dir:      dir,
		channels: make(map[int64]ChannelDefinition),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemChannelRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("channel dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("channel path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading channel dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading channel file %s: %w", path, err)
		}

		var raw rawChannel
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing channel file %s: %w", path, err)
		}
		if raw.ChannelID == 0 {
			continue // empty / comment-only file
		}
		if raw.ChannelID < 0 {
			return fmt.Errorf("channel file %s: channel_id must be positive", path)
		}

		def, err := raw.compile()
		if err != nil {
			return fmt.Errorf("channel %d: %w", raw.ChannelID, err)
		}
		def.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))

		if _, exists := r.channels[def.ChannelID]; exists {
			return fmt.Errorf("channel %d: duplicate definition (check multiple YAML files)", def.ChannelID)
		}
		r.channels[def.ChannelID] = def
	}
	return nil
}

func (raw rawChannel) compile() (ChannelDefinition, error) {
	def := ChannelDefinition{
		ChannelID:        raw.ChannelID,
		Description:      raw.Description,
		AnomalyThreshold: DefaultZThreshold,
		LookbackDays:     raw.LookbackDays,
	}

	grans := raw.Granularities
	if len(grans) == 0 {
		grans = []string{string(GranularityHourly), string(GranularityDaily)}
	}
	for _, s := range grans {
		g, err := ParseGranularity(s)
		if err != nil {
			return ChannelDefinition{}, err
		}
		def.Granularities = append(def.Granularities, g)
	}

	for _, n := range raw.AnomalyFields {
		f := FieldNumber(n)
		if err := f.Validate(); err != nil {
			return ChannelDefinition{}, err
		}
		def.AnomalyFields = append(def.AnomalyFields, f)
	}

	if raw.AnomalyThreshold != nil {
		t := *raw.AnomalyThreshold
		if err := ValidateThreshold("anomaly_threshold", t); err != nil {
			return ChannelDefinition{}, err
		}
		if t == 0 {
			return ChannelDefinition{}, InvalidArgument("anomaly_threshold", t, "must be positive")
		}
		def.AnomalyThreshold = t
	}
	if def.LookbackDays < 0 {
		return ChannelDefinition{}, InvalidArgument("lookback_days", raw.LookbackDays, "must not be negative")
	}
	if def.LookbackDays == 0 {
		def.LookbackDays = DefaultAnomalyLookbackDays
	}
	return def, nil
}

// Channels returns all definitions ordered by channel id.
func (r *FileSystemChannelRepository) Channels() []ChannelDefinition {
	out := make([]ChannelDefinition, 0, len(r.channels))
	for _, def := range r.channels {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
