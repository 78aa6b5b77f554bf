package store

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultChecklist = []ChecklistItem{
	{ID: "hr1", Department: DeptHR, Task: "Monthly Payroll Register Approval"},
	{ID: "hr2", Department: DeptHR, Task: "New Hire Documentation Completion"},
	{ID: "hr3", Department: DeptHR, Task: "Statutory Compliance (PF/ESI) Filing"},
	{ID: "it1", Department: DeptIT, Task: "Server Patch Management Log"},
	{ID: "it2", Department: DeptIT, Task: "Access Review Audit Trail"},
	{ID: "it3", Department: DeptIT, Task: "Backup & Disaster Recovery Test"},
	{ID: "op1", Department: DeptOperations, Task: "Daily Output Verification"},
	{ID: "op2", Department: DeptOperations, Task: "Quality Assurance Sample Test"},
	{ID: "op3", Department: DeptOperations, Task: "Shift Handover Documentation"},
}

// Catalog is the read-only department checklist.
type Catalog struct {
	items []ChecklistItem
	byID  map[string]ChecklistItem
}

func NewCatalog(items []ChecklistItem) Catalog {
	c := Catalog{
		items: make([]ChecklistItem, 0, len(items)),
		byID:  make(map[string]ChecklistItem, len(items)),
	}
	for _, item := range items {
		if item.Department == DeptLegacyProduction {
			item.Department = DeptOperations
		}
		c.items = append(c.items, item)
		c.byID[item.ID] = item
	}
	return c
}

func DefaultCatalog() Catalog {
	return NewCatalog(defaultChecklist)
}

type catalogFile struct {
	Items []ChecklistItem `yaml:"items"`
}

// LoadCatalog reads a YAML checklist of the form:
//
//	items:
//	  - id: hr1
//	    department: HR
//	    task: Monthly Payroll Register Approval
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read checklist catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Catalog{}, fmt.Errorf("parse checklist catalog: %w", err)
	}
	seen := map[string]bool{}
	for i, item := range file.Items {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Task) == "" {
			return Catalog{}, fmt.Errorf("checklist item %d: id and task are required", i)
		}
		if seen[item.ID] {
			return Catalog{}, fmt.Errorf("checklist item %q is duplicated", item.ID)
		}
		seen[item.ID] = true
		if item.Department != DeptLegacyProduction && !item.Department.Valid() {
			return Catalog{}, fmt.Errorf("checklist item %q: unknown department %q", item.ID, item.Department)
		}
	}
	return NewCatalog(file.Items), nil
}

func (c Catalog) Items() []ChecklistItem {
	out := make([]ChecklistItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c Catalog) ForDepartment(dept Department) []ChecklistItem {
	out := make([]ChecklistItem, 0)
	for _, item := range c.items {
		if item.Department == dept {
			out = append(out, item)
		}
	}
	return out
}

func (c Catalog) Lookup(id string) (ChecklistItem, bool) {
	item, ok := c.byID[id]
	return item, ok
}

// TaskLabel falls back to the raw id for items no longer in the catalog.
func (c Catalog) TaskLabel(id string) string {
	if item, ok := c.byID[id]; ok {
		return item.Task
	}
	return id
}
