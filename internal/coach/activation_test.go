package coach

import "testing"

func TestParseActivation(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Activation
		wantOK bool
	}{
		{"phone number", "Coach me on +15551234567 - help me negotiate", Activation{"+15551234567", "help me negotiate"}, true},
		{"lowercase", "coach me on Alex - ask for a raise", Activation{"Alex", "ask for a raise"}, true},
		{"shouting", "COACH ME ON Sam - be kind", Activation{"Sam", "be kind"}, true},
		{"contact stops at first separator", "coach me on Mary-Jane - plan a trip - next week", Activation{"Mary-Jane", "plan a trip - next week"}, true},
		{"extra whitespace", "  coach me on   bob@icloud.com   -   patch things up  ", Activation{"bob@icloud.com", "patch things up"}, true},
		{"embedded in sentence", "hey, coach me on Dana - salary talk", Activation{"Dana", "salary talk"}, true},
		{"blank goal", "coach me on bob -  ", Activation{"bob", ""}, true},
		{"blank contact", "coach me on   - lunch plans", Activation{"", "lunch plans"}, true},
		{"plain message", "hello", Activation{}, false},
		{"missing separator", "coach me on Dana", Activation{}, false},
		{"hyphen without spaces", "coach me on Dana-salary", Activation{}, false},
		{"empty", "", Activation{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseActivation(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseActivation(%q) = (%+v, %v), want (%+v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
