package shim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// LaunchConfig is what the page process learns from its command line.
type LaunchConfig struct {
	// HiddenPage seeds the visibility state as hidden.
	HiddenPage bool
	// OpenerID is the id of the window that opened this page, if any.
	OpenerID *int64
}

// WithOpener returns a copy of l carrying opener id.
func (l LaunchConfig) WithOpener(id int64) LaunchConfig {
	l.OpenerID = &id
	return l
}

// Args renders the launch config back into command line flags.
func (l LaunchConfig) Args() []string {
	var args []string
	if l.HiddenPage {
		args = append(args, protocol.FlagHiddenPage)
	}
	if l.OpenerID != nil {
		args = append(args, protocol.FlagOpenerID, strconv.FormatInt(*l.OpenerID, 10))
	}
	return args
}

// LaunchConfigFromArgs scans a process argument list for the bridge flags.
// Unknown arguments are skipped. The opener id may be given as
// "--opener-id N" or "--opener-id=N".
func LaunchConfigFromArgs(args []string) (LaunchConfig, error) {
	var l LaunchConfig
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == protocol.FlagHiddenPage:
			l.HiddenPage = true
		case arg == protocol.FlagOpenerID:
			if i+1 >= len(args) {
				return LaunchConfig{}, fmt.Errorf("%s requires a value", protocol.FlagOpenerID)
			}
			i++
			id, err := parseOpenerID(args[i])
			if err != nil {
				return LaunchConfig{}, err
			}
			l.OpenerID = &id
		case strings.HasPrefix(arg, protocol.FlagOpenerID+"="):
			id, err := parseOpenerID(strings.TrimPrefix(arg, protocol.FlagOpenerID+"="))
			if err != nil {
				return LaunchConfig{}, err
			}
			l.OpenerID = &id
		}
	}
	return l, nil
}

func parseOpenerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", protocol.FlagOpenerID, s, err)
	}
	return id, nil
}
