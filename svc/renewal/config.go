package renewal

import "time"

// Config controls the renewal sweep. Window should cover the schedule period;
// within one process consecutive windows are joined regardless, a restarted
// process starts again from now-Window.
type Config struct {
	Window      time.Duration `env:"RENEWAL_WINDOW" envDefault:"24h"`
	Concurrency int           `env:"RENEWAL_CONCURRENCY" envDefault:"8"`
	LockKey     string        `env:"RENEWAL_LOCK_KEY" envDefault:"renewal-sweep"`
	LockTTL     time.Duration `env:"RENEWAL_LOCK_TTL" envDefault:"10m"`
	Schedule    string        `env:"RENEWAL_SCHEDULE" envDefault:"daily@00:05"`
}

// DefaultConfig returns the configuration used when none is loaded.
func DefaultConfig() Config {
	return Config{
		Window:      24 * time.Hour,
		Concurrency: 8,
		LockKey:     "renewal-sweep",
		LockTTL:     10 * time.Minute,
		Schedule:    "daily@00:05",
	}
}
