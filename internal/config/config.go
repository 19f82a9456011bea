package config

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	API     APIConfig
	Log     LogConfig
	Engine  EngineConfig
	Ingest  IngestConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type StorageConfig struct {
	DataDir string
}

type APIConfig struct {
	// Token guards the local HTTP API. Empty disables auth, which is fine
	// for loopback-only deployments.
	Token string
}

type LogConfig struct {
	Level string
}

type EngineConfig struct {
	MaxAlternatives int
	RecentWindow    int
}

type IngestConfig struct {
	// PollInterval is how often the import worker checks the job queue,
	// as a time.ParseDuration string.
	PollInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			MaxAlternatives: 3,
			RecentWindow:    10,
		},
		Ingest: IngestConfig{
			PollInterval: "2s",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/triage/config.json, then applies TRIAGE_* environment
// variable overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
