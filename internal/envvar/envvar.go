package envvar

const (
	// Assets overrides the assets root directory.
	Assets = "IMGCLASSIFY_ASSETS"

	// Model overrides the frozen network path.
	Model = "IMGCLASSIFY_MODEL"

	// LogLevel overrides the log level (debug, info, warn, error).
	LogLevel = "IMGCLASSIFY_LOG_LEVEL"
)
