package sanitize

import "testing"

func TestClean(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "script element and its contents removed",
			input: "<script>alert('x')</script>hi",
			want:  "hi",
		},
		{
			name:  "markup stripped text kept",
			input: "<b>bold</b> and <i>italic</i>",
			want:  "bold and italic",
		},
		{
			name:  "event handler attribute removed",
			input: `<img src=x onerror="alert(1)">ok`,
			want:  "ok",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
