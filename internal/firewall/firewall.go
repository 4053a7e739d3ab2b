// Package firewall implements the enforcement collaborator that cuts
// live access: deleting a pass-through rule and flushing connection
// tracking state. Both are delegated to operator-configured commands
// so warden stays agnostic of the packet filter in use.
package firewall

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/jbweber/homelab/warden/internal/domain"
	"go.uber.org/zap"
)

// ExecFirewall runs configured commands with "%ZONE%" and "%MAC%"
// placeholders substituted. An empty command list makes the call a
// logged no-op, which is the safe default on hosts where the
// enforcement agent tears rules down on its own reload.
type ExecFirewall struct {
	deleteCmd []string
	flushCmd  []string
	logger    *zap.Logger
}

// New creates a firewall collaborator from command templates.
func New(deleteCmd, flushCmd []string, logger *zap.Logger) *ExecFirewall {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecFirewall{deleteCmd: deleteCmd, flushCmd: flushCmd, logger: logger}
}

// DeletePassthroughRule removes the live rule backing a registry entry.
func (f *ExecFirewall) DeletePassthroughRule(zone string, entry domain.PassthroughEntry) error {
	if len(f.deleteCmd) == 0 {
		f.logger.Debug("no firewall delete command configured, skipping",
			zap.String("zone", zone), zap.String("mac", entry.MAC))
		return nil
	}
	return f.run(f.deleteCmd, zone, entry.MAC)
}

// FlushState invalidates connection-tracking state for a mac or ip.
func (f *ExecFirewall) FlushState(target string) error {
	if len(f.flushCmd) == 0 {
		f.logger.Debug("no firewall flush command configured, skipping",
			zap.String("target", target))
		return nil
	}
	return f.run(f.flushCmd, "", target)
}

func (f *ExecFirewall) run(tmpl []string, zone, mac string) error {
	argv := make([]string, len(tmpl))
	for i, arg := range tmpl {
		arg = strings.ReplaceAll(arg, "%ZONE%", zone)
		arg = strings.ReplaceAll(arg, "%MAC%", mac)
		argv[i] = arg
	}
	out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("firewall command %q failed: %w (output: %s)",
			strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
