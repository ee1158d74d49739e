package tiers

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market-data-cache/internal/config"
	"market-data-cache/internal/database"
	"market-data-cache/internal/redis"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Load()
	cfg.DatabaseType = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "tiers.db")
	return cfg
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeFull, ParseMode("full"))
	assert.Equal(t, ModeDurableOnly, ParseMode("durable-only"))
	assert.Equal(t, ModeFastOnly, ParseMode("FAST-ONLY"))
	assert.Equal(t, ModeMemoryOnly, ParseMode("memory-only"))
	assert.Equal(t, ModeDisabled, ParseMode("none"))
	assert.Equal(t, ModeFull, ParseMode("bogus"))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "full", ModeFull.String())
	assert.Equal(t, "durable-only", ModeDurableOnly.String())
	assert.Equal(t, "fast-only", ModeFastOnly.String())
	assert.Equal(t, "memory-only", ModeMemoryOnly.String())
	assert.Equal(t, "none", ModeDisabled.String())
}

func TestEffectiveMode(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "em.db"))
	require.NoError(t, err)
	defer db.Close()

	rdb, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	t.Run("both tiers up", func(t *testing.T) {
		m := &Manager{db: db, rdb: rdb}
		assert.Equal(t, ModeFull, m.EffectiveMode(ModeFull))
	})

	t.Run("fast cache down degrades full to durable-only", func(t *testing.T) {
		m := &Manager{db: db}
		assert.Equal(t, ModeDurableOnly, m.EffectiveMode(ModeFull))
	})

	t.Run("durable store down degrades full to fast-only", func(t *testing.T) {
		m := &Manager{rdb: rdb}
		assert.Equal(t, ModeFastOnly, m.EffectiveMode(ModeFull))
	})

	t.Run("both tiers down degrades full to memory-only", func(t *testing.T) {
		m := &Manager{}
		assert.Equal(t, ModeMemoryOnly, m.EffectiveMode(ModeFull))
	})

	t.Run("never escalates above the preference", func(t *testing.T) {
		m := &Manager{db: db, rdb: rdb}
		assert.Equal(t, ModeDurableOnly, m.EffectiveMode(ModeDurableOnly))
		assert.Equal(t, ModeFastOnly, m.EffectiveMode(ModeFastOnly))
		assert.Equal(t, ModeMemoryOnly, m.EffectiveMode(ModeMemoryOnly))
	})

	t.Run("durable-only with db down degrades to fast-only", func(t *testing.T) {
		// degradation walks the fixed order, so the next weaker mode with a
		// healthy tier wins even if the preference never named it
		m := &Manager{rdb: rdb}
		assert.Equal(t, ModeFastOnly, m.EffectiveMode(ModeDurableOnly))
	})

	t.Run("durable-only with both tiers down degrades to memory-only", func(t *testing.T) {
		m := &Manager{}
		assert.Equal(t, ModeMemoryOnly, m.EffectiveMode(ModeDurableOnly))
	})
}

func TestInit(t *testing.T) {
	t.Run("full mode with both tiers reachable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		cfg := testConfig(t)
		cfg.RedisAddress = mr.Addr()

		m := NewManager(cfg, zap.NewNop())
		m.Init()
		defer m.Close()

		assert.Equal(t, ModeFull, m.Mode())
		assert.NotNil(t, m.DB())
		assert.NotNil(t, m.Redis())
	})

	t.Run("unreachable redis degrades to durable-only", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RedisAddress = "127.0.0.1:1"

		m := NewManager(cfg, zap.NewNop())
		m.Init()
		defer m.Close()

		assert.Equal(t, ModeDurableOnly, m.Mode())
		assert.Nil(t, m.Redis())
	})

	t.Run("memory-only preference skips both tiers", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CacheMode = "memory-only"

		m := NewManager(cfg, zap.NewNop())
		m.Init()
		defer m.Close()

		assert.Equal(t, ModeMemoryOnly, m.Mode())
		assert.Nil(t, m.DB())
		assert.Nil(t, m.Redis())
	})

	t.Run("none disables caching", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CacheMode = "none"

		m := NewManager(cfg, zap.NewNop())
		m.Init()
		defer m.Close()

		assert.Equal(t, ModeDisabled, m.Mode())
	})

	t.Run("re-init retries a tier that came back", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RedisAddress = "127.0.0.1:1"

		m := NewManager(cfg, zap.NewNop())
		m.Init()
		assert.Equal(t, ModeDurableOnly, m.Mode())

		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		cfg.RedisAddress = mr.Addr()
		m.Init()
		defer m.Close()

		assert.Equal(t, ModeFull, m.Mode())
	})
}

func TestCacheKey(t *testing.T) {
	t.Run("params sorted by name", func(t *testing.T) {
		key := CacheKey("prices", map[string]string{
			"ticker":     "AAPL",
			"start_date": "2024-01-01",
			"end_date":   "2024-02-01",
		})
		assert.Equal(t, "prices:end_date:2024-02-01:start_date:2024-01-01:ticker:AAPL", key)
	})

	t.Run("empty params omitted", func(t *testing.T) {
		withEmpty := CacheKey("prices", map[string]string{"ticker": "AAPL", "start_date": ""})
		without := CacheKey("prices", map[string]string{"ticker": "AAPL"})
		assert.Equal(t, without, withEmpty)
	})

	t.Run("no params", func(t *testing.T) {
		assert.Equal(t, "prices", CacheKey("prices", nil))
	})
}

func TestInvalidationPattern(t *testing.T) {
	assert.Equal(t, "prices:*ticker:AAPL*", InvalidationPattern("prices", "AAPL"))
}
