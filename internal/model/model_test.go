package model

import "testing"

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Juan", "juan"},
		{"García", "garcia"},
		{"  María José ", "maria.jose"},
		{"Núñez Peña", "nunez.pena"},
		{"Ana   Belén", "ana.belen"},
	}

	for _, tt := range tests {
		if got := NormalizeUsername(tt.in); got != tt.want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildUsername(t *testing.T) {
	if got := BuildUsername("María", "López Ruiz"); got != "maria.lopez.ruiz" {
		t.Fatalf("BuildUsername = %q, want %q", got, "maria.lopez.ruiz")
	}
}

func TestHasBadge(t *testing.T) {
	u := User{Badges: []string{"streak-3"}}

	if !u.HasBadge("streak-3") {
		t.Fatalf("expected HasBadge to find existing badge")
	}
	if u.HasBadge("streak-7") {
		t.Fatalf("expected HasBadge to miss absent badge")
	}
}
