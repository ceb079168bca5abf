package api

import "github.com/azkaraz/adstat/users"

// Report statuses as reported by the backend.
const (
	ReportUploaded   = "uploaded"
	ReportProcessing = "processing"
	ReportCompleted  = "completed"
	ReportError      = "error"
)

// Report is one uploaded spreadsheet and its processing state.
type Report struct {
	ID           int64   `json:"id"`
	Filename     string  `json:"filename"`
	FileSize     int64   `json:"file_size,omitempty"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// Done reports whether processing reached a final state.
func (r Report) Done() bool {
	return r.Status == ReportCompleted || r.Status == ReportError
}

// ReportSummary aggregates a report list for the dashboard view.
type ReportSummary struct {
	Total      int
	TotalBytes int64
	ByStatus   map[string]int
}

func Summarize(reports []Report) ReportSummary {
	s := ReportSummary{ByStatus: make(map[string]int)}
	for _, r := range reports {
		s.Total++
		s.TotalBytes += r.FileSize
		s.ByStatus[r.Status]++
	}
	return s
}

type UploadResult struct {
	Message  string `json:"message"`
	ReportID int64  `json:"report_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type Message struct {
	Message string `json:"message"`
}

type ProfileUpdate struct {
	Message string      `json:"message"`
	User    *users.User `json:"user"`
}

type SheetConnectResult struct {
	Message   string         `json:"message"`
	SheetInfo map[string]any `json:"sheet_info,omitempty"`
}

// VKCallbackRequest is the code exchange payload for linking a VK Ads account.
type VKCallbackRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	DeviceID     string `json:"device_id,omitempty"`
	State        string `json:"state,omitempty"`
}

type updateProfileRequest struct {
	Email string `json:"email"`
}

type sheetConnectRequest struct {
	SheetID string `json:"sheet_id"`
}

type authURLResponse struct {
	AuthURL string `json:"auth_url"`
}

type campaignsResponse struct {
	Campaigns []map[string]any `json:"campaigns"`
}
