package entities

// PermissionID identifies one grantable capability (e.g., "case_view").
// The vocabulary is closed: every valid identifier is declared below.
type PermissionID string

// Group-level identifiers. Holding one implies holding every child of the group.
const (
	UserAll            PermissionID = "user_all"
	RoleAll            PermissionID = "role_all"
	CaseAll            PermissionID = "case_all"
	DeathAll           PermissionID = "death_all"
	TestAll            PermissionID = "test_all"
	VaccinationAll     PermissionID = "vaccination_all"
	HospitalizationAll PermissionID = "hospitalization_all"
	BedAll             PermissionID = "bed_all"
	ReportAll          PermissionID = "report_all"
	MapAll             PermissionID = "map_all"
)

// Child identifiers
const (
	UserView   PermissionID = "user_view"
	UserCreate PermissionID = "user_create"
	UserEdit   PermissionID = "user_edit"
	UserDelete PermissionID = "user_delete"

	RoleView PermissionID = "role_view"
	RoleEdit PermissionID = "role_edit"

	CaseView   PermissionID = "case_view"
	CaseEdit   PermissionID = "case_edit"
	CaseExport PermissionID = "case_export"

	DeathView PermissionID = "death_view"
	DeathEdit PermissionID = "death_edit"

	TestView PermissionID = "test_view"
	TestEdit PermissionID = "test_edit"

	VaccinationView PermissionID = "vaccination_view"
	VaccinationEdit PermissionID = "vaccination_edit"

	HospitalizationView PermissionID = "hospitalization_view"
	HospitalizationEdit PermissionID = "hospitalization_edit"

	BedView PermissionID = "bed_view"
	BedEdit PermissionID = "bed_edit"

	ReportView  PermissionID = "report_view"
	ReportEdit  PermissionID = "report_edit"
	ReportShare PermissionID = "report_share"

	MapView    PermissionID = "map_view"
	MapAnimate PermissionID = "map_animate"
)

// Vocabulary is the complete set of known permission identifiers.
var Vocabulary = map[PermissionID]struct{}{
	UserAll: {}, UserView: {}, UserCreate: {}, UserEdit: {}, UserDelete: {},
	RoleAll: {}, RoleView: {}, RoleEdit: {},
	CaseAll: {}, CaseView: {}, CaseEdit: {}, CaseExport: {},
	DeathAll: {}, DeathView: {}, DeathEdit: {},
	TestAll: {}, TestView: {}, TestEdit: {},
	VaccinationAll: {}, VaccinationView: {}, VaccinationEdit: {},
	HospitalizationAll: {}, HospitalizationView: {}, HospitalizationEdit: {},
	BedAll: {}, BedView: {}, BedEdit: {},
	ReportAll: {}, ReportView: {}, ReportEdit: {}, ReportShare: {},
	MapAll: {}, MapView: {}, MapAnimate: {},
}

// Known reports whether the identifier belongs to the vocabulary
func (p PermissionID) Known() bool {
	_, ok := Vocabulary[p]
	return ok
}

// String returns the identifier as a plain string
func (p PermissionID) String() string {
	return string(p)
}

// PermissionIDs converts plain strings to permission identifiers.
// Unknown values are kept as-is.
func PermissionIDs(values ...string) []PermissionID {
	ids := make([]PermissionID, 0, len(values))
	for _, v := range values {
		ids = append(ids, PermissionID(v))
	}
	return ids
}
