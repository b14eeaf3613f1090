package config

// Config represents the complete ledgerlink configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Notion  NotionConfig  `yaml:"notion"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines local state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// NotionConfig defines Notion API access and workspace schema settings.
type NotionConfig struct {
	// Token is the integration token used for API calls.
	Token string `yaml:"token"`

	// VerificationToken is the fallback webhook secret, used when no
	// handshake has been received in this process (e.g. after a restart).
	VerificationToken string `yaml:"verification_token,omitempty"`

	// DayDatabaseID identifies the database holding one page per calendar day.
	DayDatabaseID string `yaml:"day_database_id"`

	BaseURL string `yaml:"base_url,omitempty"`
	Version string `yaml:"version,omitempty"`

	// TransactionMarker is matched (case-insensitive substring) against the
	// parent database title to decide whether a page is a transaction.
	TransactionMarker string `yaml:"transaction_marker,omitempty"`

	// DateMarker is matched (case-insensitive substring) against property
	// names when locating the transaction date.
	DateMarker string `yaml:"date_marker,omitempty"`

	// DateProperty is the date property name on day pages.
	DateProperty string `yaml:"date_property,omitempty"`

	// DayRelationProperty is the relation property on transaction pages
	// that points at the day page.
	DayRelationProperty string `yaml:"day_relation_property,omitempty"`

	// DayTitleProperty is the title property name on day pages.
	DayTitleProperty string `yaml:"day_title_property,omitempty"`
}

// WebhookConfig defines the inbound webhook endpoint settings.
type WebhookConfig struct {
	// Path is the URL path for the Notion webhook endpoint.
	Path string `yaml:"path"`

	// SignatureHeader is the HTTP header carrying the HMAC signature.
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum allowed request body size (e.g. "10MB").
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// Default values
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultStatePath       = "./state/ledgerlink.db"
	DefaultBaseURL         = "https://api.notion.com/v1"
	DefaultNotionVersion   = "2022-06-28"
	DefaultWebhookPath     = "/webhook/notion"
	DefaultSignatureHeader = "X-Notion-Signature"
	DefaultMaxBodySize     = 10 * 1024 * 1024 // 10 MB, matches the upstream raw-body limit

	DefaultTransactionMarker   = "transaccion"
	DefaultDateMarker          = "fecha"
	DefaultDateProperty        = "Fecha"
	DefaultDayRelationProperty = "Día"
	DefaultDayTitleProperty    = "Name"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "ledgerlink",
			Listen:    DefaultListen,
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: DefaultStatePath,
		},
		Notion: NotionConfig{
			BaseURL:             DefaultBaseURL,
			Version:             DefaultNotionVersion,
			TransactionMarker:   DefaultTransactionMarker,
			DateMarker:          DefaultDateMarker,
			DateProperty:        DefaultDateProperty,
			DayRelationProperty: DefaultDayRelationProperty,
			DayTitleProperty:    DefaultDayTitleProperty,
		},
		Webhook: WebhookConfig{
			Path:            DefaultWebhookPath,
			SignatureHeader: DefaultSignatureHeader,
		},
	}
}
