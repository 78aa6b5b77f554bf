package rbac

import "compliance/api/internal/store"

type Action string
type Tab string

const (
	ActionSubmitEvidence Action = "submit_evidence"
	ActionSubmitDMAX     Action = "submit_dmax"
	ActionReview         Action = "review"
	ActionCertify        Action = "certify"
	ActionViewDepartment Action = "view_department"
	ActionViewGlobal     Action = "view_global"
	ActionExportLedger   Action = "export_ledger"
	ActionManageUsers    Action = "manage_users"
	ActionViewActivity   Action = "view_activity"
	ActionSendReminders  Action = "send_reminders"
	ActionUpdateProfile  Action = "update_profile"
)

const (
	TabDashboard  Tab = "dashboard"
	TabChecklists Tab = "checklists"
	TabDMAX       Tab = "dmax"
	TabApprovals  Tab = "approvals"
	TabExecutive  Tab = "executive"
	TabAdmin      Tab = "admin"
)

// Capability is what a role may see and do. Tabs are ordered for navigation.
type Capability struct {
	Tabs    []Tab
	Actions []Action
	Default Tab
}

var contributor = Capability{
	Tabs:    []Tab{TabDashboard, TabChecklists, TabDMAX},
	Actions: []Action{ActionSubmitEvidence, ActionSubmitDMAX, ActionUpdateProfile},
	Default: TabDashboard,
}

var capabilities = map[store.Role]Capability{
	store.RoleContributor: contributor,
	store.RoleTeamLead:    contributor,
	store.RoleHR:          contributor,
	store.RoleManager: {
		Tabs:    []Tab{TabDashboard, TabChecklists, TabDMAX},
		Actions: []Action{ActionSubmitEvidence, ActionSubmitDMAX, ActionViewDepartment, ActionUpdateProfile},
		Default: TabDashboard,
	},
	store.RoleInternalAuditor: {
		Tabs:    []Tab{TabDashboard, TabApprovals},
		Actions: []Action{ActionReview, ActionUpdateProfile},
		Default: TabApprovals,
	},
	store.RoleExternalAuditor: {
		Tabs:    []Tab{TabDashboard, TabDMAX, TabExecutive},
		Actions: []Action{ActionCertify, ActionViewGlobal, ActionExportLedger, ActionUpdateProfile},
		Default: TabExecutive,
	},
	store.RoleSuperAdmin: {
		Tabs: []Tab{TabDashboard, TabExecutive, TabAdmin},
		Actions: []Action{
			ActionCertify,
			ActionViewGlobal,
			ActionExportLedger,
			ActionManageUsers,
			ActionViewActivity,
			ActionSendReminders,
			ActionUpdateProfile,
		},
		Default: TabAdmin,
	},
}

func For(role store.Role) Capability {
	if c, ok := capabilities[role]; ok {
		return c
	}
	return Capability{Default: TabDashboard}
}

func Can(role store.Role, action Action) bool {
	for _, a := range For(role).Actions {
		if a == action {
			return true
		}
	}
	return false
}

func CanOpen(role store.Role, tab Tab) bool {
	for _, t := range For(role).Tabs {
		if t == tab {
			return true
		}
	}
	return false
}

func DefaultTab(role store.Role) Tab {
	return For(role).Default
}

// Normalize maps unknown roles to the least privileged one.
func Normalize(role string) store.Role {
	r := store.Role(role)
	if r.Valid() {
		return r
	}
	return store.RoleContributor
}

// Executive roles are exempt from monthly DMAX reporting.
func Executive(role store.Role) bool {
	return role == store.RoleSuperAdmin || role == store.RoleExternalAuditor
}
