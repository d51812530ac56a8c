// Package commands holds the REST commands shipped with the SDK. Each command
// pairs a Spec defined once at init with a struct carrying its path values and
// optional body.
package commands

import (
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// AuditReasonHeader carries a moderator-supplied reason to the audit log.
const AuditReasonHeader = "X-Audit-Log-Reason"

var getServerConfigSpec = command.Define[GetServerConfig](http.MethodGet, "config", command.Unauthorized())

// GetServerConfig fetches the public server configuration.
type GetServerConfig struct {
	command.Returns[models.ServerConfig]
}

func (GetServerConfig) Spec() *command.Spec   { return getServerConfigSpec }
func (GetServerConfig) PathValues() []string { return nil }

func addAuditReason(h http.Header, reason string) {
	if reason != "" {
		h.Set(AuditReasonHeader, reason)
	}
}
