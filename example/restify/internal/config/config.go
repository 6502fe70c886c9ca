package config

const (
	// Remote API
	DefaultBaseURL = "https://jsonplaceholder.typicode.com"
	ConfigFile     = "restify.yaml"

	// Server configuration
	MetricsPort = ":2112"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "restify-example"
	ServiceVersion = "0.1.0"

	// Call interval
	OperationInterval = 5 // seconds
)
