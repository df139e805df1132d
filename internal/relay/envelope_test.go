package relay

import (
	"encoding/json"
	"testing"

	"github.com/ragrelay/server/internal/agent/model"
)

func TestInboundMessageValidate(t *testing.T) {
	valid := InboundMessage{
		MessageID: "m-1",
		ThreadID:  "th-1",
		Channel:   model.ChannelTelegram,
		UserID:    "u-1",
		Text:      "hello",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*InboundMessage)
	}{
		{"missing thread_id", func(m *InboundMessage) { m.ThreadID = "  " }},
		{"missing user_id", func(m *InboundMessage) { m.UserID = "" }},
		{"missing text", func(m *InboundMessage) { m.Text = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestOutboundMessageOmitsEmptyVoiceHint(t *testing.T) {
	out := OutboundMessage{
		MessageID: "m-1",
		ThreadID:  "th-1",
		Type:      OutboundTypeMessage,
		Text:      "hi",
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded["voice"]; present {
		t.Error("nil voice hint serialized")
	}
	if _, present := decoded["requires_auth"]; present {
		t.Error("false requires_auth serialized")
	}
}
