// Package tenantconf loads the per-tenant config file: the knobs that
// govern when an in-memory layer gets checkpointed, how aggressively
// GC reclaims historic layers, and how long point-in-time recovery
// must stay possible.
package tenantconf

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// FileName is the name a tenant's config file is expected to have
// directly under its tenant directory.
const FileName = "config"

// TenantConf holds the tunables for a single tenant, loaded from its
// TOML config file. Zero values mean "use the compiled-in default";
// resolve fills them in.
type TenantConf struct {
	CheckpointDistanceBytes int64         `toml:"checkpoint_distance_bytes"`
	CompactionThreshold     int           `toml:"compaction_threshold"`
	GcHorizonBytes          int64         `toml:"gc_horizon_bytes"`
	GcPeriod                time.Duration `toml:"gc_period"`
	PitrInterval            time.Duration `toml:"pitr_interval"`
	EvictionPolicy          string        `toml:"eviction_policy"`
}

// Defaults returns the compiled-in tenant config used when a tenant
// has no config file of its own, or as the base resolve fills gaps
// into.
func Defaults() TenantConf {
	return TenantConf{
		CheckpointDistanceBytes: 256 << 20,
		CompactionThreshold:     10,
		GcHorizonBytes:          64 << 20,
		GcPeriod:                time.Hour,
		PitrInterval:            7 * 24 * time.Hour,
		EvictionPolicy:          "lru",
	}
}

// Load reads and parses the config file at path. A missing file is
// not an error: it returns Defaults().
func Load(path string) (TenantConf, error) {
	conf := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return TenantConf{}, errors.Wrapf(err, "tenantconf: read %s", path)
	}
	if _, err := toml.Decode(string(data), &conf); err != nil {
		return TenantConf{}, errors.Wrapf(err, "tenantconf: parse %s", path)
	}
	return conf.resolve(), nil
}

// resolve fills any zero-valued field with its compiled-in default,
// so a config file only naming one or two knobs still produces a
// complete TenantConf.
func (c TenantConf) resolve() TenantConf {
	d := Defaults()
	if c.CheckpointDistanceBytes == 0 {
		c.CheckpointDistanceBytes = d.CheckpointDistanceBytes
	}
	if c.CompactionThreshold == 0 {
		c.CompactionThreshold = d.CompactionThreshold
	}
	if c.GcHorizonBytes == 0 {
		c.GcHorizonBytes = d.GcHorizonBytes
	}
	if c.GcPeriod == 0 {
		c.GcPeriod = d.GcPeriod
	}
	if c.PitrInterval == 0 {
		c.PitrInterval = d.PitrInterval
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = d.EvictionPolicy
	}
	return c
}

// Save writes conf to path as TOML, overwriting any existing file.
func Save(path string, conf TenantConf) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "tenantconf: create %s", path)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(conf); err != nil {
		return errors.Wrapf(err, "tenantconf: encode %s", path)
	}
	return nil
}
