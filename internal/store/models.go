package store

type Role string

const (
	RoleContributor     Role = "Contributor"
	RoleTeamLead        Role = "Team Lead"
	RoleManager         Role = "Manager"
	RoleHR              Role = "HR"
	RoleInternalAuditor Role = "Internal Auditor"
	RoleExternalAuditor Role = "External Auditor"
	RoleSuperAdmin      Role = "Super Admin"
)

var Roles = []Role{
	RoleContributor,
	RoleTeamLead,
	RoleManager,
	RoleHR,
	RoleInternalAuditor,
	RoleExternalAuditor,
	RoleSuperAdmin,
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type Department string

const (
	DeptHR         Department = "HR"
	DeptIT         Department = "IT"
	DeptAdmin      Department = "Admin"
	DeptOperations Department = "Operations"
	DeptAudit      Department = "Audit"

	// DeptLegacyProduction is the retired label rewritten to DeptOperations on load.
	DeptLegacyProduction Department = "Production"
)

var Departments = []Department{DeptHR, DeptIT, DeptAdmin, DeptOperations, DeptAudit}

func (d Department) Valid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// Status is shared by Evidence and DMAXReport. Wire values keep the labels
// the portal has always persisted.
type Status string

const (
	StatusDraft               Status = "Draft"
	StatusSubmitted           Status = "Submitted"
	StatusManagerApproved     Status = "Auditor Approved"
	StatusRejected            Status = "Rejected"
	StatusFinalAuditCompleted Status = "Certified"
)

var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusManagerApproved,
	StatusRejected,
	StatusFinalAuditCompleted,
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusFinalAuditCompleted
}

type ActivityType string

const (
	ActivityLogin         ActivityType = "Login"
	ActivitySubmission    ActivityType = "Submission"
	ActivityApproval      ActivityType = "Approval"
	ActivityRejection     ActivityType = "Rejection"
	ActivityStatusChange  ActivityType = "Status Change"
	ActivityProfileUpdate ActivityType = "Profile Update"
	ActivitySystem        ActivityType = "System"
)

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Department Department `json:"department"`
	IsActive   bool       `json:"isActive"`
	ProfilePic string     `json:"profilePic,omitempty"`
}

// Evidence is proof submitted against one checklist item. Department is
// copied from the submitter when the record is created and never follows
// later changes to the user.
type Evidence struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	ChecklistItemID string     `json:"checklistItemId"`
	Department      Department `json:"department"`
	SubmissionDate  string     `json:"submissionDate"`
	FileURL         string     `json:"fileUrl,omitempty"`
	Comment         string     `json:"comment"`
	Status          Status     `json:"status"`
	ManagerComment  string     `json:"managerComment,omitempty"`
	CGOComment      string     `json:"cgoComment,omitempty"`
}

// DMAXReport is a monthly progress report. UserName and Department are
// snapshots taken at submission time.
type DMAXReport struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	UserName       string     `json:"userName"`
	Department     Department `json:"department"`
	Month          string     `json:"month"`
	Year           int        `json:"year"`
	Content        string     `json:"content"`
	Status         Status     `json:"status"`
	SubmissionDate string     `json:"submissionDate"`
	FileName       string     `json:"fileName,omitempty"`
	FileURL        string     `json:"fileUrl,omitempty"`
	FileSize       string     `json:"fileSize,omitempty"`
}

type ActivityLog struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	UserName    string       `json:"userName"`
	Department  Department   `json:"department"`
	Action      ActivityType `json:"action"`
	Description string       `json:"description"`
	// Timestamp is RFC 3339 for new entries. Entries written by older
	// clients carry a locale string such as "3/14/2024, 9:05:11 AM" and are
	// kept verbatim.
	Timestamp string `json:"timestamp"`
}

type ChecklistItem struct {
	ID         string     `json:"id" yaml:"id"`
	Department Department `json:"department" yaml:"department"`
	Task       string     `json:"task" yaml:"task"`
}

// Submission is the common read surface of Evidence and DMAXReport.
type Submission interface {
	Evidence | DMAXReport
	Key() string
	Owner() string
	Dept() Department
	CurrentStatus() Status
}

func (e Evidence) Key() string           { return e.ID }
func (e Evidence) Owner() string         { return e.UserID }
func (e Evidence) Dept() Department      { return e.Department }
func (e Evidence) CurrentStatus() Status { return e.Status }

func (r DMAXReport) Key() string           { return r.ID }
func (r DMAXReport) Owner() string         { return r.UserID }
func (r DMAXReport) Dept() Department      { return r.Department }
func (r DMAXReport) CurrentStatus() Status { return r.Status }

var Months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

func ValidMonth(month string) bool {
	for _, m := range Months {
		if m == month {
			return true
		}
	}
	return false
}
