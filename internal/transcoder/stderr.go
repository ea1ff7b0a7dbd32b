package transcoder

import "strings"

// fatalMarkers flag stderr lines that indicate the input cannot be played.
var fatalMarkers = []string{"Error", "Invalid"}

// benignMarkers are substrings that downgrade an otherwise fatal line.
// These show up routinely on healthy live streams: transient HTTP errors
// the reconnect logic recovers from, SPS chatter from slightly corrupt
// keyframes, and probe-window warnings while the stream settles.
var benignMarkers = []string{
	"HTTP error",
	"SPS",
	"probesize",
	"Could not find codec parameters",
}

// isFatalLine classifies a single stderr line.
func isFatalLine(line string) bool {
	fatal := false
	for _, m := range fatalMarkers {
		if strings.Contains(line, m) {
			fatal = true
			break
		}
	}
	if !fatal {
		return false
	}
	for _, m := range benignMarkers {
		if strings.Contains(line, m) {
			return false
		}
	}
	return true
}
