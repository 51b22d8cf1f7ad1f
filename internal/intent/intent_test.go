package intent

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"security beats build", "مراجعة أمنية لمنصة HR", Security},
		{"security english", "Please audit our login flow", Security},
		{"security case insensitive", "SECURITY review for the portal", Security},
		{"build without command", "منصة موارد بشرية للموظفين والإدارات", Build},
		{"command with build", "أنشئ منصة تجارة إلكترونية", Build},
		{"command with build english", "Create a dashboard", Build},
		{"two build concepts", "Is the platform scalable?", Build},
		{"single short build term", "crm", Build},
		{"build dominates discussion", "ما رأيك في منصة تعليمية؟", Build},
		{"command", "Run the tests", Command},
		{"arabic command", "احذف الملف القديم", Command},
		{"agreement", "تمام", Discussion},
		{"agreement english", "hm ok later", Discussion},
		{"question", "What is the pricing model?", Inquiry},
		{"arabic question", "كيف أبدأ؟", Inquiry},
		{"short unmatched", "hm later", Discussion},
		{"empty", "", Discussion},
		{"long unmatched", "the second variant with the larger header image looks nicer overall to me", Inquiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text, nil))
		})
	}
}

func TestDetectContinuation(t *testing.T) {
	followUp := "the second variant with the larger header image looks nicer overall to me"
	prior := []Turn{{Speaker: "user", Text: "تمام", Intent: Discussion}}

	assert.Equal(t, Inquiry, Detect(followUp, nil))
	assert.Equal(t, Discussion, Detect(followUp, prior))

	t.Run("only the last turn counts", func(t *testing.T) {
		history := []Turn{{Intent: Discussion}, {Intent: Inquiry}}
		assert.Equal(t, Inquiry, Detect(followUp, history))
	})

	t.Run("long follow up", func(t *testing.T) {
		long := strings.Repeat("lorem ipsum ", 10)
		assert.Equal(t, Inquiry, Detect(long, prior))
	})

	t.Run("build still wins", func(t *testing.T) {
		assert.Equal(t, Build, Detect("an app", prior))
	})
}

func TestDetectIsTotal(t *testing.T) {
	inputs := []string{
		"", " ", "\n\t", "?", "؟", "!!!", "12345", "😀😀", "a", "مرحبا",
		strings.Repeat("x", 5000), "SELECT * FROM users;", "\x00\xff",
	}
	for _, in := range inputs {
		got := Detect(in, nil)
		assert.True(t, got.Valid(), "input %q produced %q", in, got)
	}
}

func TestScan(t *testing.T) {
	s := Default.Scan("أنشئ منصة تجارة إلكترونية")
	assert.Equal(t, 0, s[SignalSecurity])
	assert.Equal(t, 1, s[SignalCommand])
	assert.Equal(t, 2, s[SignalBuild])
}

func TestClassifierAcceptsCustomLanguage(t *testing.T) {
	french := Language{
		Name: "fr",
		Predicates: []Predicate{
			Pattern(SignalSecurity, "security", `(?i)sécurité`),
			Contains(SignalQuestion, "question-mark", "?"),
		},
	}
	c := New(french)

	assert.Equal(t, Security, c.Detect("audit de sécurité", nil))
	assert.Equal(t, Inquiry, c.Detect("Combien coûte la plateforme pour une grande entreprise ?", nil))
	assert.Equal(t, Discussion, c.Detect("Please audit", nil))
}

func TestIsMeaningless(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"a", true},
		{"?!", true},
		{"...", true},
		{"؟؟", true},
		{"abc", true},
		{"لا", true},
		{"ok", false},
		{"OK", false},
		{" hi ", false},
		{"no", false},
		{"abcd", false},
		{"مرحبا", false},
		{"hello world", false},
		{"42", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMeaningless(tt.text), "IsMeaningless(%q)", tt.text)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemory(3)
	for i := 1; i <= 5; i++ {
		m.Add(Turn{Speaker: "user", Text: strconv.Itoa(i), Intent: Discussion})
	}

	require.Equal(t, 3, m.Len())
	var texts []string
	for _, turn := range m.Turns() {
		texts = append(texts, turn.Text)
	}
	assert.Equal(t, []string{"3", "4", "5"}, texts)

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, "5", last.Text)
}

func TestMemoryDefaults(t *testing.T) {
	m := NewMemory(0)
	assert.Equal(t, DefaultMemoryCapacity, m.Cap())

	_, ok := m.Last()
	assert.False(t, ok)
	assert.Empty(t, m.Turns())

	for i := 0; i < 25; i++ {
		m.Add(Turn{Text: strconv.Itoa(i)})
	}
	turns := m.Turns()
	require.Len(t, turns, DefaultMemoryCapacity)
	assert.Equal(t, "15", turns[0].Text)
	assert.Equal(t, "24", turns[len(turns)-1].Text)
}
