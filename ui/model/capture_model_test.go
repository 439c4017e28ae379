package model

import (
	"testing"
	"time"
)

func TestCaptureModel_StepAgeClamps(t *testing.T) {
	var m CaptureModel
	if got := m.StepAge(-time.Second, 10*time.Second); got != 0 {
		t.Fatalf("age=%v want 0", got)
	}
	m.StepAge(4*time.Second, 10*time.Second)
	if got := m.StepAge(8*time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("age=%v want 10s", got)
	}
	m.SetEnabled(true)
	if m.Age() != 0 {
		t.Fatalf("enable did not return to live")
	}
}

func TestCaptureModel_Observe(t *testing.T) {
	var m CaptureModel
	if !m.Observe(0) {
		t.Fatalf("first frame not reported")
	}
	if m.Observe(0) {
		t.Fatalf("same frame reported twice")
	}
	if !m.Observe(1) {
		t.Fatalf("new frame not reported")
	}
	m.SetEnabled(true)
	if !m.Observe(1) {
		t.Fatalf("frame after restart not reported")
	}
}
