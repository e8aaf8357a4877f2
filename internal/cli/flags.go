package cli

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// ServeFlags holds the CLI flags for the serve command
type ServeFlags struct {
	Port int // 0 keeps the configured port
}

// ApplyFlags holds the CLI flags for the apply command
type ApplyFlags struct {
	Set      string  // JSON object of bucket values, in bucket order
	Keys     string  // Comma-separated keys for an all-zero set when Set is empty
	Key      string  // Bucket to change
	Value    float64 // Requested value
	Rounding string  // Overrides allocator.rounding when set
	Strict   bool
}
