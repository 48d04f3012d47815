package kernel

import "testing"

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	c := NewCameraKernel()
	if err := r.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("Camera")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "Camera" {
		t.Errorf("Name() = %q, want Camera", got.Name())
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCameraKernel()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(NewCameraKernel()); err == nil {
		t.Fatal("expected error registering a duplicate kernel name")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("NoSuchMethod"); err == nil {
		t.Fatal("expected error for an unregistered method name")
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewCameraKernel())
	_ = r.Register(NewSingleSampleKernel())
	_ = r.Register(NewRiboTEKernel())

	names := r.Names()
	if len(names) != 3 {
		t.Fatalf("Names() = %v, want 3 entries", names)
	}
}
