package doctor

import (
	"testing"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

func TestDoctorValidate(t *testing.T) {
	d := &Doctor{FirstName: "Luis", LastName: " Gómez ", DNI: "V-9988776", SpecialtyID: 2}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if d.FullName() != "Luis Gómez" {
		t.Errorf("FullName() = %q", d.FullName())
	}

	missingSpecialty := &Doctor{FirstName: "Luis", LastName: "Gómez", DNI: "V-1"}
	if apperr.KindOf(missingSpecialty.Validate()) != apperr.KindInvalidInput {
		t.Error("expected invalid input without especialidad")
	}

	missingDNI := &Doctor{FirstName: "Luis", LastName: "Gómez", SpecialtyID: 1}
	if apperr.KindOf(missingDNI.Validate()) != apperr.KindInvalidInput {
		t.Error("expected invalid input without dni")
	}
}

func TestSpecialtyValidate(t *testing.T) {
	sp := &Specialty{Name: "  Cardiología "}
	if err := sp.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if sp.Name != "Cardiología" {
		t.Errorf("Name = %q", sp.Name)
	}
	if apperr.KindOf((&Specialty{}).Validate()) != apperr.KindInvalidInput {
		t.Error("expected invalid input for empty name")
	}
}
