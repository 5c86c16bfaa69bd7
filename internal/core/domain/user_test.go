package domain

import (
	"testing"
	"time"
)

func TestUser_IsAdmin(t *testing.T) {
	if !(User{Role: RoleAdmin}).IsAdmin() {
		t.Errorf("Expected ADMIN to be admin")
	}
	if (User{Role: RoleUser}).IsAdmin() {
		t.Errorf("Expected USER not to be admin")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	var nilSession *Session
	if nilSession.Expired(now) {
		t.Errorf("Expected nil session not to be expired")
	}
	if (&Session{}).Expired(now) {
		t.Errorf("Expected session without expiry not to be expired")
	}
	if !(&Session{ExpiresAt: now.Add(-time.Minute)}).Expired(now) {
		t.Errorf("Expected past expiry to be expired")
	}
}
