package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/lattice/data/db/notes.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/lattice/data/indices/bleve"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/lattice/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.ModelVersion == "" {
		cfg.Embedding.ModelVersion = "minilm-l6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.MaxQueryLength == 0 {
		cfg.Search.MaxQueryLength = 1024
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 100
	}
	if cfg.Similarity.StoreThreshold == 0 {
		cfg.Similarity.StoreThreshold = 0.5
	}
	if cfg.Linker.DebounceMS == 0 {
		cfg.Linker.DebounceMS = 300
	}
	if cfg.Linker.MinContentLength == 0 {
		cfg.Linker.MinContentLength = 20
	}
	if cfg.Linker.CacheSize == 0 {
		cfg.Linker.CacheSize = 64
	}
	if cfg.Linker.DefaultThreshold == 0 {
		cfg.Linker.DefaultThreshold = 0.5
	}
	if cfg.Linker.DefaultLimit == 0 {
		cfg.Linker.DefaultLimit = 5
	}
	if cfg.Indexer.QueueSize == 0 {
		cfg.Indexer.QueueSize = 256
	}
	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = 2
	}
	if cfg.Indexer.ReindexBatchSize == 0 {
		cfg.Indexer.ReindexBatchSize = 50
	}
	if cfg.Indexer.ReindexBatchesPS == 0 {
		cfg.Indexer.ReindexBatchesPS = 10
	}
}
