package handlers

import (
	"github.com/iluobei/miaomiaowu-sub001/core"
)

// Core services the handlers delegate to. Wired once at startup via
// SetServices before the router begins serving.
var (
	editorStore *core.EditorStore
	syncManager *core.SyncManager
	probePoller *core.ProbePoller
	nodeChecker *core.NodeChecker
)

// SetServices injects the core service instances used by the handlers.
func SetServices(editor *core.EditorStore, syncMgr *core.SyncManager, poller *core.ProbePoller, checker *core.NodeChecker) {
	editorStore = editor
	syncManager = syncMgr
	probePoller = poller
	nodeChecker = checker
}
