package model

// AnalysisStatus is the value of the "status" field of the per-tender status
// endpoint.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Active reports whether the backend is still working on the analysis.
func (s AnalysisStatus) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

type TenderUploadResponse struct {
	Message  string `json:"message" yaml:"message"`
	TenderID string `json:"tender_id" yaml:"tender_id"`
	Filename string `json:"filename" yaml:"filename"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

type ProposalUploadResponse struct {
	Message          string   `json:"message" yaml:"message"`
	TenderID         string   `json:"tender_id" yaml:"tender_id"`
	ContractorID     string   `json:"contractor_id" yaml:"contractor_id"`
	CompanyName      string   `json:"company_name" yaml:"company_name"`
	CompanyDirectory string   `json:"company_directory" yaml:"company_directory"`
	PrincipalFile    string   `json:"principal_file" yaml:"principal_file"`
	Attachments      []string `json:"attachments" yaml:"attachments"`
	TotalFiles       int      `json:"total_files" yaml:"total_files"`
}

type AnalysisStatusResponse struct {
	TenderID     string         `json:"tender_id" yaml:"tender_id"`
	Status       AnalysisStatus `json:"status" yaml:"status"`
	Progress     int            `json:"progress" yaml:"progress"`
	CurrentStep  string         `json:"current_step,omitempty" yaml:"current_step,omitempty"`
	Message      string         `json:"message" yaml:"message"`
	ErrorDetails string         `json:"error_details,omitempty" yaml:"error_details,omitempty"`
}

type TenderDetails struct {
	TenderID          string           `json:"tenderId" yaml:"tenderId"`
	TenderFile        string           `json:"tenderFile" yaml:"tenderFile"`
	TotalApplications int              `json:"totalApplications" yaml:"totalApplications"`
	Applications      []ContractorInfo `json:"applications" yaml:"applications"`
}

type ContractorInfo struct {
	ContractorID string `json:"contractor_id" yaml:"contractor_id"`
	CompanyName  string `json:"company_name" yaml:"company_name"`
	TotalFiles   int    `json:"total_files" yaml:"total_files"`
}

type ContractorsResponse struct {
	Message          string           `json:"message" yaml:"message"`
	TenderID         string           `json:"tender_id" yaml:"tender_id"`
	TotalContractors int              `json:"total_contractors" yaml:"total_contractors"`
	Contractors      []ContractorInfo `json:"contractors" yaml:"contractors"`
}

type ApplicationFiles struct {
	Principal   []string `json:"principal" yaml:"principal"`
	Attachments []string `json:"attachments" yaml:"attachments"`
}

type ApplicationDetails struct {
	TenderID     string           `json:"tender_id" yaml:"tender_id"`
	ContractorID string           `json:"contractor_id" yaml:"contractor_id"`
	CompanyName  string           `json:"company_name" yaml:"company_name"`
	Files        ApplicationFiles `json:"files" yaml:"files"`
	TotalFiles   int              `json:"total_files" yaml:"total_files"`
}

// CurrentStatus is the global, non tender scoped status snapshot. Fields the
// client does not interpret are kept in Raw.
type CurrentStatus struct {
	State           string         `json:"state" yaml:"state"`
	TenderID        string         `json:"tenderId,omitempty" yaml:"tenderId,omitempty"`
	CurrentProgress int            `json:"currentProgress" yaml:"currentProgress"`
	CurrentStep     string         `json:"currentStep,omitempty" yaml:"currentStep,omitempty"`
	Message         string         `json:"message,omitempty" yaml:"message,omitempty"`
	Raw             map[string]any `json:"-" yaml:"-"`
}
