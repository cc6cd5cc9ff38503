package main

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/session"
)

func TestLogSessionChanges(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sess := session.NewProvider("")
	logSessionChanges(sess, zap.New(core).Sugar())

	sess.Resolve()
	if err := sess.SignIn(model.User{ID: "ana", Name: "Ana"}, ""); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	sess.SignOut()

	want := []string{
		"tui: session unauthenticated",
		"tui: session authenticated as ana",
		"tui: session unauthenticated",
	}
	got := logs.All()
	if len(got) != len(want) {
		t.Fatalf("logged %d entries, want %d: %v", len(got), len(want), got)
	}
	for i, entry := range got {
		if entry.Message != want[i] {
			t.Errorf("entry %d = %q, want %q", i, entry.Message, want[i])
		}
	}
}
