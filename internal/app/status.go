package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "urlwatch/pkg/logx"
)

// notifyStatus reports a STATUS= line to systemd. Outside a unit with
// NOTIFY_SOCKET this is a no-op.
func notifyStatus(log logx.Logger, status string) {
	sent, err := daemon.SdNotify(false, "STATUS="+status)
	if err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Trace("sd_notify", logx.String("status", status))
	}
}
