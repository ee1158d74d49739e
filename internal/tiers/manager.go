// Package tiers owns the connections to the durable store and the fast cache,
// computes the effective cache mode from configured preference and actual
// tier health, and derives deterministic cache keys.
//
// Mode is process-wide state: it is evaluated during Init and again only on an
// explicit re-Init. A tier that fails mid-operation degrades that operation's
// local error handling, never the global mode.
package tiers

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"market-data-cache/internal/config"
	"market-data-cache/internal/database"
	"market-data-cache/internal/redis"
)

// Mode is the effective tier combination, strongest first.
type Mode int

const (
	ModeFull Mode = iota
	ModeDurableOnly
	ModeFastOnly
	ModeMemoryOnly
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeDurableOnly:
		return "durable-only"
	case ModeFastOnly:
		return "fast-only"
	case ModeMemoryOnly:
		return "memory-only"
	default:
		return "none"
	}
}

// ParseMode maps a configured preference string to a Mode. Unknown values
// fall back to full, which the availability check then degrades as needed.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "full":
		return ModeFull
	case "durable-only":
		return ModeDurableOnly
	case "fast-only":
		return ModeFastOnly
	case "memory-only":
		return ModeMemoryOnly
	case "none":
		return ModeDisabled
	default:
		return ModeFull
	}
}

// Manager holds tier connections and the effective mode. Construct one at
// process start and inject it into the facade and cache manager.
type Manager struct {
	cfg  *config.Config
	log  *zap.Logger
	db   *database.DB
	rdb  *redis.Client
	mode Mode
}

func NewManager(cfg *config.Config, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, log: log, mode: ModeDisabled}
}

// Init attempts to open the durable-store and fast-cache connections
// independently. Each failure is logged and leaves that tier disabled; Init
// itself never fails. Calling Init again retries any tier that is down and
// re-evaluates the mode.
func (m *Manager) Init() {
	preference := ParseMode(m.cfg.CacheMode)

	if preference == ModeDisabled {
		m.log.Info("caching disabled by configuration")
		m.mode = ModeDisabled
		return
	}

	if m.db == nil && preference != ModeFastOnly && preference != ModeMemoryOnly {
		dsn := m.cfg.DatabasePath
		if m.cfg.DatabaseType != "sqlite" {
			dsn = m.cfg.PostgresDSN()
		}
		db, err := database.Open(m.cfg.DatabaseType, dsn)
		if err != nil {
			m.log.Warn("durable store unavailable", zap.Error(err))
		} else {
			m.db = db
			m.log.Info("durable store connected", zap.String("type", m.cfg.DatabaseType))
		}
	}

	if m.rdb == nil && preference != ModeDurableOnly && preference != ModeMemoryOnly {
		db, _ := strconv.Atoi(m.cfg.RedisDB)
		poolSize, err := strconv.Atoi(m.cfg.RedisPoolSize)
		if err != nil || poolSize < 1 {
			poolSize = 10
		}
		rdb, err := redis.NewClient(&redis.Config{
			Address:  m.cfg.RedisAddress,
			Password: m.cfg.RedisPassword,
			DB:       db,
			PoolSize: poolSize,
		})
		if err != nil {
			m.log.Warn("fast cache unavailable", zap.Error(err))
		} else {
			m.rdb = rdb
			m.log.Info("fast cache connected", zap.String("address", m.cfg.RedisAddress))
		}
	}

	m.mode = m.EffectiveMode(preference)
	m.log.Info("cache mode resolved",
		zap.String("preference", preference.String()),
		zap.String("effective", m.mode.String()))
}

// EffectiveMode intersects the configured preference with actual tier health.
// When the preferred mode's required tier is down it degrades to the next
// weaker mode in the fixed order Full > DurableOnly > FastOnly > MemoryOnly >
// Disabled. It never escalates above the preference.
func (m *Manager) EffectiveMode(preference Mode) Mode {
	dbUp := m.db != nil
	fastUp := m.rdb != nil

	for mode := preference; mode < ModeDisabled; mode++ {
		switch mode {
		case ModeFull:
			if dbUp && fastUp {
				return ModeFull
			}
		case ModeDurableOnly:
			if dbUp {
				return ModeDurableOnly
			}
		case ModeFastOnly:
			if fastUp {
				return ModeFastOnly
			}
		case ModeMemoryOnly:
			return ModeMemoryOnly
		}
	}
	return ModeDisabled
}

// Mode returns the effective mode computed at Init.
func (m *Manager) Mode() Mode { return m.mode }

// DB returns the durable store, or nil when that tier is down.
func (m *Manager) DB() *database.DB { return m.db }

// Redis returns the fast cache, or nil when that tier is down.
func (m *Manager) Redis() *redis.Client { return m.rdb }

// Close releases both tier connections.
func (m *Manager) Close() {
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.log.Warn("failed to close durable store", zap.Error(err))
		}
		m.db = nil
	}
	if m.rdb != nil {
		if err := m.rdb.Close(); err != nil {
			m.log.Warn("failed to close fast cache", zap.Error(err))
		}
		m.rdb = nil
	}
	m.mode = ModeDisabled
}

// CacheKey derives a deterministic fast-cache key: the dataset name followed
// by key:value pairs sorted lexicographically by key. Empty-valued params are
// omitted, so two calls with the same effective param set yield an identical
// key regardless of insertion order.
func CacheKey(dataset string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, dataset)
	for _, k := range keys {
		parts = append(parts, k+":"+params[k])
	}
	return strings.Join(parts, ":")
}

// InvalidationPattern is the glob that matches every cache key issued for a
// ticker within a dataset. Keys sort their params by name, so the ticker pair
// is not necessarily a prefix; the pattern anchors on the dataset and matches
// the ticker pair anywhere after it.
func InvalidationPattern(dataset, ticker string) string {
	return dataset + ":*ticker:" + ticker + "*"
}
