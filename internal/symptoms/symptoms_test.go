package symptoms

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Migraña", "migrana"},
		{"¿Dolor de cabeza?", "dolor de cabeza"},
		{"TENSIÓN  en   el cuello", "tension en el cuello"},
		{"náuseas!", "nauseas"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Fold(c.in); got != c.want {
			t.Errorf("Fold(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMatchExact(t *testing.T) {
	m := New(nil)
	canonical, score, ok := m.Match("ansiedad")
	if !ok || canonical != "ansiedad" {
		t.Fatalf("Match(ansiedad) = %q, %v", canonical, ok)
	}
	if score != 1.0 {
		t.Errorf("exact match score = %v, want 1.0", score)
	}
}

func TestMatchAccentless(t *testing.T) {
	m := New(nil)
	canonical, _, ok := m.Match("migrana")
	if !ok || canonical != "migraña" {
		t.Fatalf("Match(migrana) = %q, %v, want migraña", canonical, ok)
	}
}

func TestMatchTypo(t *testing.T) {
	m := New(nil)
	canonical, _, ok := m.Match("insomio")
	if !ok || canonical != "insomnio" {
		t.Fatalf("Match(insomio) = %q, %v, want insomnio", canonical, ok)
	}
}

func TestMatchEmptyAndUnknown(t *testing.T) {
	m := New(nil)
	if _, _, ok := m.Match(""); ok {
		t.Error("empty phrase matched")
	}
	if canonical, _, ok := m.Match("felicidad absoluta"); ok {
		t.Errorf("unrelated phrase matched %q", canonical)
	}
}

func TestTag(t *testing.T) {
	m := New(nil)
	got := m.Tag("Últimamente tengo insomnio y mucha ansiedad")
	want := []string{"insomnio", "ansiedad"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tag = %v, want %v", got, want)
	}
}

func TestTagMultiWordTerm(t *testing.T) {
	m := New(nil)
	got := m.Tag("me duele mucho la cabeza desde ayer")
	if len(got) != 1 || got[0] != "dolor de cabeza" {
		t.Fatalf("Tag = %v, want [dolor de cabeza]", got)
	}
}

func TestTagDeduplicates(t *testing.T) {
	m := New(nil)
	got := m.Tag("el insomnio de anoche fue como el insomnio de siempre")
	if len(got) != 1 || got[0] != "insomnio" {
		t.Fatalf("Tag = %v, want a single insomnio", got)
	}
}

func TestTagEmpty(t *testing.T) {
	m := New(nil)
	if got := m.Tag(""); got != nil {
		t.Fatalf("Tag(\"\") = %v, want nil", got)
	}
}

func TestCustomLexicon(t *testing.T) {
	m := New([]string{"jaqueca"})
	if canonical, _, ok := m.Match("jaqueca"); !ok || canonical != "jaqueca" {
		t.Fatalf("custom lexicon match = %q, %v", canonical, ok)
	}
	if _, _, ok := m.Match("insomnio"); ok {
		t.Error("default term matched with custom lexicon")
	}
}
