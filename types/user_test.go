package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw     string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{" Admin ", RoleAdmin, false},
		{"", RoleUser, false},
		{"root", "", true},
		{"superadmin", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestUserJSONNeverContainsHash(t *testing.T) {
	user := User{ID: 1, Email: "a@example.com", Role: RoleUser, PasswordHash: "bcrypt-digest"}

	raw, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "bcrypt-digest") {
		t.Errorf("serialized User leaks the hash: %s", raw)
	}

	raw, err = json.Marshal(user.Public())
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	if strings.Contains(strings.ToLower(string(raw)), "password") {
		t.Errorf("PublicUser has a credential field: %s", raw)
	}
}
