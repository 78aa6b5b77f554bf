package store

// SeedUsers is the directory written on first run, or when the stored user
// snapshot cannot be read.
func SeedUsers() []User {
	return []User{
		{ID: "u1", Name: "System Admin", Email: "admin@desicrew.in", Role: RoleSuperAdmin, Department: DeptAdmin, IsActive: true},
		{ID: "u2", Name: "Anjali Nair", Email: "anjali.n@desicrew.in", Role: RoleInternalAuditor, Department: DeptAudit, IsActive: true},
		{ID: "u3", Name: "Suresh Kumar", Email: "suresh.k@desicrew.in", Role: RoleExternalAuditor, Department: DeptAudit, IsActive: true},
		{ID: "u4", Name: "Priya Sharma", Email: "priya.s@desicrew.in", Role: RoleManager, Department: DeptHR, IsActive: true},
		{ID: "u5", Name: "Rahul Varma", Email: "rahul.v@desicrew.in", Role: RoleContributor, Department: DeptOperations, IsActive: true},
	}
}
