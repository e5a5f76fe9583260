package urlutil

import "testing"

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"wwwサブドメイン", "https://www.youtube.com/watch?v=abc123", "youtube.com", false},
		{"サブドメインなし", "https://youtube.com/watch?v=abc123", "youtube.com", false},
		{"スキームなし", "youtube.com/channel/UCx", "youtube.com", false},
		{"大文字ホスト", "https://WWW.YouTube.COM/x", "youtube.com", false},
		{"co.ukの複合サフィックス", "https://media.example.co.uk/v/1", "example.co.uk", false},
		{"空文字", "", "", true},
		{"ホストなし", "https:///path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RegistrableDomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegistrableDomain(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
