package ai

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSubstitutesVars(t *testing.T) {
	tm := DefaultTemplates()
	out := tm.Render(KindWaterReminder, map[string]string{"cups": "3", "target": "8"})
	if !strings.Contains(out, "3/8 cups") {
		t.Errorf("substitution failed: %q", out)
	}
}

func TestRenderUnknownKindFallsBack(t *testing.T) {
	tm := DefaultTemplates()
	out := tm.Render(Kind("nonsense"), nil)
	if out != tm.Prompts[string(KindRandomChat)] {
		t.Errorf("unknown kind should fall back to random chat, got %q", out)
	}
}

func TestRenderLeavesUnresolvedPlaceholders(t *testing.T) {
	tm := DefaultTemplates()
	out := tm.Render(KindWelcome, map[string]string{"time_of_day": "morning"})
	if !strings.Contains(out, "{offline_text}") {
		t.Errorf("unresolved placeholder should survive: %q", out)
	}
}

func TestLoadTemplatesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	yaml := "prompts:\n  water_reminder: \"custom water prompt for {cups}\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	tm := LoadTemplates(path)
	out := tm.Render(KindWaterReminder, map[string]string{"cups": "2"})
	if out != "custom water prompt for 2" {
		t.Errorf("override not applied: %q", out)
	}
	// Untouched kinds keep the defaults.
	if tm.Prompts[string(KindGoodbye)] != defaultTemplates[string(KindGoodbye)] {
		t.Error("non-overridden template changed")
	}
}

func TestLoadTemplatesMissingAndMalformed(t *testing.T) {
	tm := LoadTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	if len(tm.Prompts) != len(defaultTemplates) {
		t.Error("missing file should yield defaults")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("prompts: [not a map"), 0600); err != nil {
		t.Fatal(err)
	}
	tm = LoadTemplates(path)
	if tm.Prompts[string(KindWaterReminder)] != defaultTemplates[string(KindWaterReminder)] {
		t.Error("malformed file should yield defaults")
	}
}

func TestShortError(t *testing.T) {
	if got := ShortError(nil); got != "" {
		t.Errorf("nil error = %q", got)
	}
	long := strings.Repeat("x", 200)
	got := ShortError(errTest(long))
	if len([]rune(got)) != 53 || !strings.HasSuffix(got, "...") {
		t.Errorf("long error not truncated: %q", got)
	}
	if got := ShortError(errTest("short")); got != "short" {
		t.Errorf("short error = %q", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
