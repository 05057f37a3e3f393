package context

import "errors"

// CTXKey - a type for context keys
type CTXKey string

const (
	// EnvironmentCTXKey - the key used for the service environment
	EnvironmentCTXKey CTXKey = "environment"
	// DebugLoggingCTXKey - context key for debug logging
	DebugLoggingCTXKey CTXKey = "debug_logging"
	// LogLevelCTXKey - context key for application logging level
	LogLevelCTXKey CTXKey = "log_level"
	// LogWriterCTXKey - context key for overriding the log writer
	LogWriterCTXKey CTXKey = "log_writer"

	// VersionCTXKey - context key for version of code
	VersionCTXKey CTXKey = "version"
	// CommitCTXKey - context key for the commit of the code
	CommitCTXKey CTXKey = "commit"
	// BuildTimeCTXKey - context key for the build time of code
	BuildTimeCTXKey CTXKey = "build_time"

	// DatastoreCTXKey - the context key for getting the datastore
	DatastoreCTXKey CTXKey = "datastore"
	// RODatastoreCTXKey - the context key for getting the read only datastore
	RODatastoreCTXKey CTXKey = "ro_datastore"
	// ServiceKey - the key used for service context
	ServiceKey CTXKey = "service"

	// BankServerCTXKey - the context key for the issuing bank base url
	BankServerCTXKey CTXKey = "bank_server"
	// BankAccessTokenCTXKey - the context key for the issuing bank access token
	BankAccessTokenCTXKey CTXKey = "bank_access_token"
	// MerchantKeyCTXKey - the context key carrying the merchant a bank call acts for
	MerchantKeyCTXKey CTXKey = "merchant_key"

	// MerchantCacheExpiryDurationCTXKey - context key for merchant snapshot cache expiry
	MerchantCacheExpiryDurationCTXKey CTXKey = "merchant_cache_expiry"
	// MerchantCachePurgeDurationCTXKey - context key for merchant snapshot cache purge
	MerchantCachePurgeDurationCTXKey CTXKey = "merchant_cache_purge"

	// PaymentFormBaseCTXKey - context key for the hosted form base url
	PaymentFormBaseCTXKey CTXKey = "payment_form_base"

	// KafkaBrokersCTXKey - context key for the kafka broker list
	KafkaBrokersCTXKey CTXKey = "kafka_brokers"
	// Kafka509CertCTXKey - context key for the kafka tls client certificate
	Kafka509CertCTXKey CTXKey = "kafka_x509_cert"

	// RateLimitPerMinuteCTXKey - the context key for getting the rate limit
	RateLimitPerMinuteCTXKey CTXKey = "rate_limit_per_min"
	// RateLimiterBurstCTXKey - context key for allowing a bursting rate limiter
	RateLimiterBurstCTXKey CTXKey = "rate_limit_burst"
	// RedisAddrCTXKey - the context key for the rate limiter redis address
	RedisAddrCTXKey CTXKey = "redis_addr"
)

var (
	// ErrNotInContext - error you get when you ask for something not in the context.
	ErrNotInContext = errors.New("failed to get value from context")
	// ErrValueWrongType - error you get when you ask for something, and it is not the type you expected
	ErrValueWrongType = errors.New("context value of wrong type")
)
