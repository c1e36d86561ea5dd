package entities

import (
	"reflect"
	"strings"
	"testing"
)

func caseGroup() *PermissionGroup {
	return &PermissionGroup{
		GroupAllID: CaseAll,
		Label:      "Cases",
		Children: []PermissionChild{
			{ID: CaseView, Label: "View cases"},
			{ID: CaseEdit, Label: "Edit cases", RequiresIDs: []PermissionID{CaseView}},
		},
	}
}

func TestCatalog_GroupIndex(t *testing.T) {
	catalog := &Catalog{Groups: []*PermissionGroup{caseGroup()}}

	index := catalog.GroupIndex()
	want := []PermissionID{CaseView, CaseEdit}
	if got := index[CaseAll]; !reflect.DeepEqual(got, want) {
		t.Errorf("GroupIndex()[case_all] = %v, want %v", got, want)
	}
	if _, ok := index[CaseView]; ok {
		t.Error("child identifier must not be a group key")
	}
}

func TestCatalog_SkipsNilGroups(t *testing.T) {
	catalog := &Catalog{Groups: []*PermissionGroup{nil, caseGroup(), nil}}

	index := catalog.GroupIndex()
	if len(index) != 1 {
		t.Errorf("expected one indexed group, got %v", index)
	}
	if got := catalog.GetGroup(CaseAll); got == nil || got.GroupAllID != CaseAll {
		t.Errorf("expected case_all group, got %v", got)
	}
	if catalog.GetGroup("report_all") != nil {
		t.Error("expected no group for report_all")
	}
	set := NewPermissionSet(CaseEdit)
	if got := catalog.MissingRequirements(set); len(got) != 1 || got[0].ID != CaseEdit {
		t.Errorf("unexpected requirements %v", got)
	}
	if err := catalog.Validate(); err == nil || !strings.Contains(err.Error(), "is nil") {
		t.Errorf("expected nil group validation error, got %v", err)
	}
}

func TestCatalog_NilGroupIndex(t *testing.T) {
	var catalog *Catalog
	if got := catalog.GroupIndex(); len(got) != 0 {
		t.Errorf("expected empty index, got %v", got)
	}
	if catalog.GetGroup(CaseAll) != nil {
		t.Error("expected nil group from nil catalog")
	}
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name    string
		catalog *Catalog
		wantErr string
	}{
		{
			name:    "valid",
			catalog: &Catalog{Groups: []*PermissionGroup{caseGroup()}},
		},
		{
			name: "duplicate group",
			catalog: &Catalog{Groups: []*PermissionGroup{
				caseGroup(),
				{GroupAllID: CaseAll, Label: "Cases again"},
			}},
			wantErr: "duplicate group identifier",
		},
		{
			name: "child in two groups",
			catalog: &Catalog{Groups: []*PermissionGroup{
				caseGroup(),
				{GroupAllID: ReportAll, Label: "Reports", Children: []PermissionChild{{ID: CaseView, Label: "x"}}},
			}},
			wantErr: "appears in groups",
		},
		{
			name: "child is a group identifier",
			catalog: &Catalog{Groups: []*PermissionGroup{
				caseGroup(),
				{GroupAllID: ReportAll, Label: "Reports", Children: []PermissionChild{{ID: CaseAll, Label: "x"}}},
			}},
			wantErr: "is itself a group identifier",
		},
		{
			name: "empty group identifier",
			catalog: &Catalog{Groups: []*PermissionGroup{
				{Label: "Nameless"},
			}},
			wantErr: "group identifier is required",
		},
		{
			name:    "nil group",
			catalog: &Catalog{Groups: []*PermissionGroup{nil}},
			wantErr: "is nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCatalog_MissingRequirements(t *testing.T) {
	catalog := &Catalog{Groups: []*PermissionGroup{caseGroup()}}

	missing := catalog.MissingRequirements(NewPermissionSet(CaseEdit))
	if len(missing) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(missing))
	}
	if missing[0].ID != CaseEdit || !reflect.DeepEqual(missing[0].Missing, []PermissionID{CaseView}) {
		t.Errorf("unexpected requirement: %+v", missing[0])
	}

	if got := catalog.MissingRequirements(NewPermissionSet(CaseEdit, CaseView)); len(got) != 0 {
		t.Errorf("expected no missing requirements, got %+v", got)
	}
}
