package config

const (
	defaultBind                = "127.0.0.1:8804"
	defaultPollIntervalMS      = 2000
	defaultRequestTimeoutMS    = 1500
	defaultReconcileIntervalMS = 1000
	defaultRedirectURL         = "http://127.0.0.1:5173/callback"
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
	defaultDataSubdir          = ".local/share/overtone"
	defaultConfigSubpath       = "overtone/config.toml"
)

func defaultWindows() map[string]Window {
	return map[string]Window{
		"widget":   {Width: 420, Height: 180, AlwaysOnTop: true, Frameless: true},
		"settings": {Width: 460, Height: 560},
		"extra":    {Width: 480, Height: 480, AlwaysOnTop: true},
	}
}
