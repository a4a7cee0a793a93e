package cfg

type Cfg struct {
	// Telegram configuration
	BotToken    string
	PollTimeout int

	// Storage configuration
	DBPath string

	// Application configuration
	RoutesDir         string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
