package domain

type Config struct {
	Version    string
	ConfigPath string

	SiteURL   string `toml:"siteUrl"`
	UserAgent string `toml:"userAgent"`
	ProxyURL  string `toml:"proxyUrl"`

	DatabasePath string `toml:"databasePath"`

	FetchTimeoutSeconds      int `toml:"fetchTimeout"`
	NavigationTimeoutSeconds int `toml:"navigationTimeout"`
	UploadBatchSize          int `toml:"uploadBatchSize"`
	MaxChapterPages          int `toml:"maxChapterPages"`

	StorageProvider     string `toml:"storageProvider"`
	ImageKitPublicKey   string `toml:"imagekitPublicKey"`
	ImageKitPrivateKey  string `toml:"imagekitPrivateKey"`
	ImageKitURLEndpoint string `toml:"imagekitUrlEndpoint"`

	UpdateIntervalHours   int `toml:"updateIntervalHours"`
	UpdateIntervalMinutes int `toml:"updateIntervalMinutes"` // testing override
	TitleDelayMinSeconds  int `toml:"titleDelayMinSeconds"`
	TitleDelayMaxSeconds  int `toml:"titleDelayMaxSeconds"`

	DiscordToken          string `toml:"discordToken"`
	DiscordChannelID      string `toml:"discordChannelID"`
	DiscordErrorChannelID string `toml:"discordErrorChannelID"`

	LogPath       string `toml:"logPath"`
	LogLevel      string `toml:"logLevel"`
	LogMaxSize    int    `toml:"logMaxSize"` // in megabytes
	LogMaxBackups int    `toml:"logMaxBackups"`
}
