package directory

import "testing"

func TestRequesterOwnership(t *testing.T) {
	patientID, doctorID := int64(7), int64(3)
	req := Requester{UserID: 1, Role: RolePatient, PatientID: &patientID}

	if !req.OwnsPatient(7) || req.OwnsPatient(8) {
		t.Error("OwnsPatient mismatch")
	}
	if req.IsDoctor(3) {
		t.Error("patient without doctor profile reported as doctor")
	}
	if req.IsAdmin() {
		t.Error("patient reported as admin")
	}

	req.DoctorID = &doctorID
	if !req.IsDoctor(3) {
		t.Error("expected linked doctor profile to match")
	}
	if !req.HasRole(RoleAdmin, RolePatient) || req.HasRole(RoleDoctor) {
		t.Error("HasRole mismatch")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleDoctor, RolePatient} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("recepcion").Valid() || Role("").Valid() {
		t.Error("unexpected valid role")
	}
}
