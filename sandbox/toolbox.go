package sandbox

// AvailableCommands lists every applet implemented by the guest toolbox
// (package guest), matching guest/main.go's dispatch table exactly.
var AvailableCommands = []string{
	// file viewing
	"cat", "head", "tail", "touch",
	// search
	"grep", "find",
	// text processing
	"sort", "uniq", "cut", "tr", "wc", "rev", "nl",
	// data / hashing
	"base64", "sha256sum", "xxd",
	// file management
	"ls", "mkdir", "cp", "mv", "rm", "stat",
	// shell utilities
	"echo", "printf", "env", "basename", "dirname", "seq", "sleep", "which", "date",
	"true", "false", "test", "[",
	// networking
	"curl",
	// shell interpreter
	"sh", "bash",
}

var availableCommandSet = buildAvailableCommandSet()

func buildAvailableCommandSet() map[string]struct{} {
	set := make(map[string]struct{}, len(AvailableCommands))
	for _, cmd := range AvailableCommands {
		set[cmd] = struct{}{}
	}

	return set
}

// IsAvailable reports whether command is implemented by the guest toolbox.
func IsAvailable(command string) bool {
	_, ok := availableCommandSet[command]

	return ok
}
