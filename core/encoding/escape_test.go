package encoding

import "testing"

func TestEscapeXMLText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"greek", "καὶ ἐγένετο", "καὶ ἐγένετο"},
		{"ampersand", "a & b", "a &amp; b"},
		{"less than", "a < b", "a &lt; b"},
		{"greater than", "a > b", "a &gt; b"},
		{"quotes preserved", `He said "hello"`, `He said "hello"`},
		{"all three", "<x>&</x>", "&lt;x&gt;&amp;&lt;/x&gt;"},
		{"control characters dropped", "a\x00b\x1fc", "abc"},
		{"newline kept", "a\nb", "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeXMLText(tt.input)
			if got != tt.want {
				t.Errorf("EscapeXMLText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEscapeXMLAttr(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"sigla", "01 03 1739", "01 03 1739"},
		{"ampersand", "a & b", "a &amp; b"},
		{"double quotes", `He said "hello"`, "He said &quot;hello&quot;"},
		{"all chars", `<tag attr="val&ue">`, "&lt;tag attr=&quot;val&amp;ue&quot;&gt;"},
		{"whitespace", "a\tb\nc", "a&#9;b&#10;c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeXMLAttr(tt.input)
			if got != tt.want {
				t.Errorf("EscapeXMLAttr(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripInvalid(t *testing.T) {
	if got := StripInvalid("plain"); got != "plain" {
		t.Errorf("StripInvalid(plain) = %q", got)
	}
	if got := StripInvalid("a\x0bb\uFFFEc"); got != "abc" {
		t.Errorf("StripInvalid = %q, want abc", got)
	}
}

func TestScriptLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"– 123", ""},
		{"καὶ", LangGreek},
		{"et dixit", LangLatin},
		{"ܘܐܡܪ", LangSyriac},
		{"ⲁⲩⲱ", LangCoptic},
		{"[ ] dixit", LangLatin},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ScriptLanguage(tt.input); got != tt.want {
				t.Errorf("ScriptLanguage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
