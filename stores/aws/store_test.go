package aws

import "testing"

func TestObjectKey(t *testing.T) {
	valid := map[string]string{
		"designs-list":         "designs-list",
		"designs/abc.json":     "designs/abc.json",
		"users/u1/uploads/a-1": "users/u1/uploads/a-1",
	}
	for in, want := range valid {
		got, err := objectKey(in)
		if err != nil {
			t.Errorf("objectKey(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("objectKey(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "..", "designs/../x", "a//b", "/abs", "trailing/"} {
		if _, err := objectKey(in); err == nil {
			t.Errorf("objectKey(%q) should fail", in)
		}
	}
}
