package config

// PublishConfig configures the delivery channels.
type PublishConfig struct {
	Timeout string `yaml:"timeout"`

	Notion NotionConfig `yaml:"notion"`
	Slack  SlackConfig  `yaml:"slack"`
	Email  EmailConfig  `yaml:"email"`
}

// NotionConfig configures the Notion integration.
type NotionConfig struct {
	Token string `yaml:"token"`

	// DatabaseID is the content-calendar database drafts are filed into
	DatabaseID string `yaml:"database_id"`
}

// IsConfigured reports whether Notion publishing can run.
func (n *NotionConfig) IsConfigured() bool {
	return n.Token != "" && n.DatabaseID != ""
}

// SlackConfig configures Slack digests and notifications.
type SlackConfig struct {
	Token string `yaml:"token"`

	// Channel receives digests and publish notifications
	Channel string `yaml:"channel"`
}

// IsConfigured reports whether Slack publishing can run.
func (s *SlackConfig) IsConfigured() bool {
	return s.Token != "" && s.Channel != ""
}

// EmailConfig configures SMTP newsletter delivery.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`

	// SubjectPrefix is prepended to every newsletter subject
	SubjectPrefix string `yaml:"subject_prefix"`
}

// IsConfigured reports whether email delivery can run.
func (e *EmailConfig) IsConfigured() bool {
	return e.Host != "" && e.From != "" && len(e.To) > 0
}
