package telegram

import (
	"strings"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "**hi**", "<b>hi</b>"},
		{"italic", "*hi*", "<i>hi</i>"},
		{"strikethrough", "~~gone~~", "<s>gone</s>"},
		{"code span", "run `go vet`", "run <code>go vet</code>"},
		{"link", "[docs](https://example.com)", `<a href="https://example.com">docs</a>`},
		{"heading", "# Title", "<b>Title</b>"},
		{"escaping", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"blockquote", "> quoted", "<blockquote>quoted\n</blockquote>"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := MarkdownToHTML(c.in); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestMarkdownFencedCode(t *testing.T) {
	got := MarkdownToHTML("```go\nfmt.Println(\"<x>\")\n```")
	if !strings.Contains(got, `<pre><code class="language-go">`) {
		t.Errorf("missing code block: %q", got)
	}
	if !strings.Contains(got, "&lt;x&gt;") {
		t.Errorf("code not escaped: %q", got)
	}
}

func TestMarkdownLists(t *testing.T) {
	got := MarkdownToHTML("- one\n- two")
	if !strings.Contains(got, "• one") || !strings.Contains(got, "• two") {
		t.Errorf("bullets wrong: %q", got)
	}

	got = MarkdownToHTML("1. first\n2. second")
	if !strings.Contains(got, "1. first") || !strings.Contains(got, "2. second") {
		t.Errorf("numbering wrong: %q", got)
	}
}

func TestMarkdownImageBecomesLink(t *testing.T) {
	got := MarkdownToHTML("![alt](https://example.com/x.png)")
	if !strings.Contains(got, `<a href="https://example.com/x.png">alt</a>`) {
		t.Errorf("image not linked: %q", got)
	}
}
