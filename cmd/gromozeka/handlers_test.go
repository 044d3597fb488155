package main

import (
	"testing"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

func TestCommandArgs(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/weather", ""},
		{"/weather Tbilisi", "Tbilisi"},
		{"/search  climbing  shoes ", "climbing  shoes"},
		{"/set detect-spam false", "detect-spam false"},
		{"/weather\nParis", "Paris"},
	}
	for _, c := range cases {
		if got := commandArgs(c.in); got != c.want {
			t.Errorf("commandArgs(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFirstURL(t *testing.T) {
	env := &gromozeka.Envelope{
		Text: "read https://example.com/page now",
		Entities: []gromozeka.Entity{
			{Type: "mention", Offset: 0, Length: 4},
			{Type: "url", Offset: 5, Length: 24},
		},
	}
	if got := firstURL(env); got != "https://example.com/page" {
		t.Errorf("firstURL = %q", got)
	}

	env = &gromozeka.Envelope{
		Text: "see this",
		Entities: []gromozeka.Entity{
			{Type: "text_link", Offset: 4, Length: 4, URL: "https://hidden.example"},
		},
	}
	if got := firstURL(env); got != "https://hidden.example" {
		t.Errorf("text_link firstURL = %q", got)
	}

	if got := firstURL(&gromozeka.Envelope{Text: "plain"}); got != "" {
		t.Errorf("no entities firstURL = %q", got)
	}
}

func TestFirstURLUnicodeOffsets(t *testing.T) {
	// Entity offsets count runes, not bytes.
	env := &gromozeka.Envelope{
		Text: "смотри https://spam.example",
		Entities: []gromozeka.Entity{
			{Type: "url", Offset: 7, Length: 20},
		},
	}
	if got := firstURL(env); got != "https://spam.example" {
		t.Errorf("firstURL = %q", got)
	}
}

func TestMatchPrivateURL(t *testing.T) {
	private := gromozeka.Chat{ID: 7, Type: "private"}
	group := gromozeka.Chat{ID: -100, Type: "supergroup"}
	url := []gromozeka.Entity{{Type: "url", Offset: 0, Length: 5}}

	cases := []struct {
		name string
		env  *gromozeka.Envelope
		want bool
	}{
		{"private with url", &gromozeka.Envelope{Chat: private, Entities: url}, true},
		{"group with url", &gromozeka.Envelope{Chat: group, Entities: url}, false},
		{"private without url", &gromozeka.Envelope{Chat: private}, false},
		{"private non-text", &gromozeka.Envelope{Chat: private, Type: gromozeka.UnknownMessage, Entities: url}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := matchPrivateURL(c.env); got != c.want {
				t.Errorf("match = %v, want %v", got, c.want)
			}
		})
	}
}
