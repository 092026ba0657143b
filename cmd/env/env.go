package env

// Prefix is the prefix of every fxcache environment variable
const Prefix = "FXCACHE_"

const (
	// DBURLSuffix is the PostgreSQL connection string
	DBURLSuffix = "DB_URL"

	// RedisURLSuffix is the Redis connection URL
	RedisURLSuffix = "REDIS_URL"

	// ProAPIKeySuffix is the ExchangeRate-API key. The keyed source is
	// only registered when it is set
	ProAPIKeySuffix = "ERAPI_KEY"
)
