package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shiori/data/shiori.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "/usr/local/var/shiori/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "http" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 6000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 200
	}
	if cfg.Search.MaxSeed == 0 {
		cfg.Search.MaxSeed = 50
	}
	if cfg.Search.Alpha == 0 {
		cfg.Search.Alpha = 0.3
	}
	if cfg.Search.PropagationBaseline == 0 {
		cfg.Search.PropagationBaseline = 0.5
	}
	if cfg.Search.PropagationFetchLimit == 0 {
		cfg.Search.PropagationFetchLimit = 500
	}
	if cfg.Search.TagSignalWeight == 0 && cfg.Search.CitationSignalWeight == 0 {
		cfg.Search.TagSignalWeight = 0.6
		cfg.Search.CitationSignalWeight = 0.4
	}
	if cfg.Search.CitationExpandLimit == 0 {
		cfg.Search.CitationExpandLimit = 20
	}
	if cfg.Search.GraphExpansionLimit == 0 {
		cfg.Search.GraphExpansionLimit = 10
	}
	if cfg.Learner.WindowMinutes == 0 {
		cfg.Learner.WindowMinutes = 60
	}
	if cfg.Learner.ClickIncrement == 0 {
		cfg.Learner.ClickIncrement = 0.1
	}
	if cfg.Learner.AcceptIncrement == 0 {
		cfg.Learner.AcceptIncrement = 0.5
	}
	if cfg.Learner.MaxWeight == 0 {
		cfg.Learner.MaxWeight = 10.0
	}
	if cfg.Learner.DefaultWeight == 0 {
		cfg.Learner.DefaultWeight = 1.0
	}
	if cfg.Labeller.MinClusterSize == 0 {
		cfg.Labeller.MinClusterSize = 5
	}
	if cfg.Labeller.MaxClusters == 0 {
		cfg.Labeller.MaxClusters = 20
	}
	if cfg.Labeller.MaxIterations == 0 {
		cfg.Labeller.MaxIterations = 100
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
