package assembly

import (
	"errors"
	"testing"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		prompt  string
		want    string
		wantErr error
	}{
		{prompt: "version=3\n\nBody", want: "3"},
		{prompt: "version=1.2.0\r\nBody", want: "1.2.0"},
		{prompt: "version=7", want: "7"},
		{prompt: "version=  4  \nBody", want: "4"},
		{prompt: "", wantErr: ErrEmptyPrompt},
		{prompt: "no header", wantErr: ErrMissingVersion},
		{prompt: "\nversion=2", wantErr: ErrMissingVersion},
		{prompt: "version=\n\nBody", wantErr: ErrEmptyVersion},
		{prompt: "version=   \nBody", wantErr: ErrEmptyVersion},
		{prompt: "version: 2\nBody", wantErr: ErrMalformedVersion},
		{prompt: "Version=2\nBody", wantErr: ErrMalformedVersion},
		{prompt: "version = 2\nBody", wantErr: ErrMalformedVersion},
		{prompt: "version=2 beta\nBody", wantErr: ErrMalformedVersion},
		{prompt: "version=a=b\nBody", wantErr: ErrMalformedVersion},
	}
	for _, tt := range tests {
		got, err := ExtractVersion(tt.prompt)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExtractVersion(%q) err = %v, want %v", tt.prompt, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractVersion(%q): %v", tt.prompt, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractVersion(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestExtractVersions_NamesFailingPrompt(t *testing.T) {
	_, err := ExtractVersions(map[string]string{
		"good": "version=1\nx",
		"bad":  "version=\nx",
	})
	if !errors.Is(err, ErrEmptyVersion) {
		t.Fatalf("err = %v, want ErrEmptyVersion", err)
	}
	if got := err.Error(); got[:len("prompt bad")] != "prompt bad" {
		t.Errorf("error %q does not name the prompt", got)
	}
}
