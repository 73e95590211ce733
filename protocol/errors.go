package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned while decoding requests.
var (
	// ErrUnknownCommand is returned when the leading byte is not a known command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidEncoding is returned when a payload is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid payload encoding")
)

// CommandError reports an unrecognized command byte.
// It matches ErrUnknownCommand under errors.Is.
type CommandError struct {
	Command byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %q (0x%02x)", ErrUnknownCommand, e.Command, e.Command)
}

// Is reports whether target is ErrUnknownCommand.
func (e *CommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}
