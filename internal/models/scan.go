package models

// Scan event types broadcast over the WebSocket while a scan runs.
const (
	ScanEventFolderStarted = "folder_started"
	ScanEventBatchDone     = "batch_done"
	ScanEventFolderDone    = "folder_done"
	ScanEventAllDone       = "all_done"
	ScanEventCancelled     = "cancelled"
	ScanEventError         = "error"
)

// ScanEvent is one progress notification from a running scan. RunID is
// stamped by the orchestrator that owns the run; the scanner itself
// leaves it empty.
type ScanEvent struct {
	Type   string  `json:"type"`
	RunID  string  `json:"run_id,omitempty"`
	Folder string  `json:"folder,omitempty"`
	Done   int     `json:"done,omitempty"`
	Total  int     `json:"total,omitempty"`
	Error  string  `json:"error,omitempty"`
	Stats  *Folder `json:"stats,omitempty"`
}
