package billing

import "time"

// Config holds HTTP-layer settings of the billing API.
type Config struct {
	// InternalSecret guards internal endpoints such as the renewal sweep
	// trigger. Internal endpoints are disabled when empty.
	InternalSecret   string        `env:"BILLING_INTERNAL_SECRET"`
	ReadinessTimeout time.Duration `env:"BILLING_READINESS_TIMEOUT" envDefault:"2s"`
	MaxBodyBytes     int64         `env:"BILLING_MAX_BODY_BYTES" envDefault:"65536"`
}

// InternalSecretHeader carries the shared secret of internal endpoints.
const InternalSecretHeader = "X-Internal-Secret"
