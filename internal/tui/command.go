package tui

import "strings"

// Command is one prompt entry: a name plus the remainder of the line as its
// argument.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits a prompt line into the command name and its argument.
// The name is matched case-insensitively; the argument keeps interior spaces
// intact so file paths survive, only surrounding whitespace is stripped.
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	return Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}
}
