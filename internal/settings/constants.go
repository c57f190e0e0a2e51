package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the console display name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback console display name.
	DefaultSiteName = "Channel Console"
	// EditorSessionTTLSecondsKey controls how long an idle editor session lives.
	EditorSessionTTLSecondsKey = "EDITOR_SESSION_TTL_SECONDS"
	// DefaultEditorSessionTTLSeconds is the fallback idle session lifetime.
	DefaultEditorSessionTTLSeconds = 1800
	// RateLimitKey limits console API requests per second per admin.
	RateLimitKey = "RATE_LIMIT"
	// LoginRateLimitKey limits login attempts per minute per username.
	LoginRateLimitKey = "LOGIN_RATE_LIMIT_PER_MINUTE"
	// TwoFARateLimitKey limits 2FA code checks per minute per admin.
	TwoFARateLimitKey = "TWOFA_RATE_LIMIT_PER_MINUTE"
	// TwoFAIssuerKey is the issuer shown by authenticator apps.
	TwoFAIssuerKey = "TWOFA_ISSUER"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultRateLimit is the fallback API rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultLoginRateLimit is the fallback login attempts per minute.
	DefaultLoginRateLimit = 10
	// DefaultTwoFARateLimit is the fallback 2FA checks per minute.
	DefaultTwoFARateLimit = 10
	// DefaultTwoFAIssuer is the fallback authenticator issuer.
	DefaultTwoFAIssuer = "Channel Console"
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "console:rl"
)
