package audit

import "testing"

const redactedValue = "[REDACTED]"

func TestNewEvent(t *testing.T) {
	event := NewEvent(ActionLogin)

	if event.Action != ActionLogin {
		t.Errorf("Action = %q, want %q", event.Action, ActionLogin)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if !event.Success {
		t.Error("Success = false, want true")
	}
	if other := NewEvent(ActionLogin); other.ID == event.ID {
		t.Error("IDs should be unique")
	}
}

func TestEvent_Builders(t *testing.T) {
	event := NewEvent(ActionGuestLinkCreated).
		WithActor("admin").
		WithTarget("link-1").
		WithClientIP("203.0.113.7").
		WithDetail("session_id", "sess-1")

	if event.Actor != "admin" {
		t.Errorf("Actor = %q, want %q", event.Actor, "admin")
	}
	if event.Target != "link-1" {
		t.Errorf("Target = %q, want %q", event.Target, "link-1")
	}
	if event.ClientIP != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want %q", event.ClientIP, "203.0.113.7")
	}
	if event.Detail["session_id"] != "sess-1" {
		t.Error("Detail not set correctly")
	}
}

func TestEvent_Failed(t *testing.T) {
	event := NewEvent(ActionLogin).Failed("bad password")

	if event.Success {
		t.Error("Success = true, want false")
	}
	if event.Detail["reason"] != "bad password" {
		t.Errorf("reason = %v, want %q", event.Detail["reason"], "bad password")
	}
}

func TestSanitizeDetail(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if SanitizeDetail(nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("redacts credentials", func(t *testing.T) {
		in := map[string]any{
			"password": "hunter2",
			"token":    "rly_abc",
			"code":     "123456",
			"agent":    "builder",
		}
		out := SanitizeDetail(in)

		for _, k := range []string{"password", "token", "code"} {
			if out[k] != redactedValue {
				t.Errorf("%s = %v, want redacted", k, out[k])
			}
		}
		if out["agent"] != "builder" {
			t.Errorf("agent = %v, want builder", out["agent"])
		}
		if in["password"] != "hunter2" {
			t.Error("input map should not be modified")
		}
	})
}
