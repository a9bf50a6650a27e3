package build

// Set via -ldflags '-X proxyauction/build.Version=... -X proxyauction/build.Date=...'
var (
	Version = "dev"
	Date    = "unknown"
)
