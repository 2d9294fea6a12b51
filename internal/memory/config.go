package memory

import "time"

// Config holds the memory store settings. They shape retrieval and eviction
// only; the pipeline never branches on them.
type Config struct {
	ConnectionString string  `envconfig:"VECTOR_CONNECTION_STRING"`
	Collection       string  `envconfig:"VECTOR_COLLECTION_NAME" default:"ai_pipeline_memory"`
	DecayRate        float64 `envconfig:"VECTOR_DECAY_RATE" default:"0.01"`
	RetrievalK       int     `envconfig:"VECTOR_RETRIEVAL_K" default:"6"`
	TTLDays          int     `envconfig:"VECTOR_TTL_DAYS" default:"30"`
	RetentionFloor   float64 `envconfig:"VECTOR_RETENTION_FLOOR" default:"0.05"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		Collection:     "ai_pipeline_memory",
		DecayRate:      0.01,
		RetrievalK:     6,
		TTLDays:        30,
		RetentionFloor: 0.05,
	}
}

// TTL returns the configured lifetime; zero disables TTL eviction.
func (c Config) TTL() time.Duration {
	if c.TTLDays <= 0 {
		return 0
	}
	return time.Duration(c.TTLDays) * 24 * time.Hour
}
