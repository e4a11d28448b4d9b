package mysensors

import (
	"testing"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "presentation",
			line: "7;2;0;0;6;Outdoor temp\n",
			want: Message{NodeID: 7, SensorID: 2, Type: MessagePresentation, SubType: 6, Payload: "Outdoor temp"},
		},
		{
			name: "set with ack",
			line: "12;0;1;1;2;1\n",
			want: Message{NodeID: 12, SensorID: 0, Type: MessageSet, Ack: true, SubType: 2, Payload: "1"},
		},
		{
			name: "payload keeps semicolons",
			line: "3;1;1;0;47;a;b;c\n",
			want: Message{NodeID: 3, SensorID: 1, Type: MessageSet, SubType: 47, Payload: "a;b;c"},
		},
		{
			name: "crlf terminator",
			line: "0;255;3;0;14;Gateway startup complete.\r\n",
			want: Message{NodeID: 0, SensorID: 255, Type: MessageInternal, SubType: 14, Payload: "Gateway startup complete."},
		},
		{
			name: "no terminator, empty payload",
			line: "255;255;3;0;3;",
			want: Message{NodeID: 255, SensorID: 255, Type: MessageInternal, SubType: 3},
		},
		{
			name: "ack field other than 1 is false",
			line: "1;1;1;x;0;20\n",
			want: Message{NodeID: 1, SensorID: 1, Type: MessageSet, SubType: 0, Payload: "20"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMessage(tt.line)
			if got != tt.want {
				t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseMessageInvalid(t *testing.T) {
	lines := []string{
		"",
		"\n",
		"1;2;3;0;4\n",
		"garbage",
		"a;2;1;0;0;1\n",
		"1;b;1;0;0;1\n",
		"1;2;c;0;0;1\n",
		"1;2;1;0;d;1\n",
		"256;0;1;0;0;1\n",
		"1;300;1;0;0;1\n",
		"-1;0;1;0;0;1\n",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			got := ParseMessage(line)
			if got.IsValid() {
				t.Fatalf("ParseMessage(%q) valid, want invalid", line)
			}
			if got.NodeID != 0 || got.SensorID != 0 || got.Type != 0 || got.SubType != 0 || got.Ack {
				t.Errorf("numeric fields not zero: %+v", got)
			}
			if got.Payload != line {
				t.Errorf("Payload = %q, want raw line %q", got.Payload, line)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	lines := []string{
		"7;2;0;0;6;Outdoor temp\n",
		"12;0;1;1;2;1\n",
		"3;1;1;0;47;a;b;c\n",
		"255;255;3;0;4;5\n",
		"0;0;3;0;9;\n",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			if got := ParseMessage(line).Encode(); got != line {
				t.Errorf("Encode(ParseMessage(%q)) = %q", line, got)
			}
		})
	}
}

func TestMessageString(t *testing.T) {
	msg := NewSetMessage(4, 1, node.DataStatus, "1")
	if got := msg.String(); got != "4;1;1;0;2;1" {
		t.Errorf("String() = %q", got)
	}

	invalid := ParseMessage("oops\r\n")
	if got := invalid.String(); got != "oops" {
		t.Errorf("String() of invalid = %q, want %q", got, "oops")
	}
}

func TestSubTypeName(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{Type: MessagePresentation, SubType: 6}, "S_TEMP"},
		{Message{Type: MessageSet, SubType: 0}, "V_TEMP"},
		{Message{Type: MessageRequest, SubType: 2}, "V_STATUS"},
		{Message{Type: MessageInternal, SubType: 3}, "I_ID_REQUEST"},
		{Message{Type: MessageInternal, SubType: 99}, "I_UNKNOWN(99)"},
		{Message{Type: MessageStream, SubType: 5}, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.msg.SubTypeName(); got != tt.want {
				t.Errorf("SubTypeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	if MessageInternal.String() != "INTERNAL" {
		t.Errorf("MessageInternal.String() = %q", MessageInternal.String())
	}
	if MessageType(9).String() != "UNKNOWN(9)" {
		t.Errorf("MessageType(9).String() = %q", MessageType(9).String())
	}
}
