package groups

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

const testGroups = `
groups:
  walk:
    words: [walkability, street vitality]
    auto_learned: [pedestrian]
    weight: 1.2
  plaza:
    words: [public space, plaza, "  ", plaza]
`

func mustParse(t *testing.T, data string) *Snapshot {
	t.Helper()
	snap, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestParse_keepsOrderAndDefaults(t *testing.T) {
	snap := mustParse(t, testGroups)
	if len(snap.Groups) != 2 || snap.Groups[0].Name != "walk" || snap.Groups[1].Name != "plaza" {
		t.Fatalf("groups: %+v", snap.Groups)
	}
	if snap.Groups[1].Weight != 1.0 {
		t.Errorf("missing weight should default to 1.0, got %v", snap.Groups[1].Weight)
	}
	if got := snap.Groups[1].AllWords(); !reflect.DeepEqual(got, []string{"public space", "plaza"}) {
		t.Errorf("AllWords: %v", got)
	}
}

func TestParse_acceptsJSON(t *testing.T) {
	snap := mustParse(t, `{"config": {"version": 2}, "groups": {"tod": {"words": ["TOD"], "weight": 1.1}}}`)
	if len(snap.Groups) != 1 || snap.Groups[0].Weight != 1.1 {
		t.Errorf("json groups: %+v", snap.Groups)
	}
	if snap.Config["version"] != 2 {
		t.Errorf("config: %+v", snap.Config)
	}
}

func TestDetect(t *testing.T) {
	snap := mustParse(t, testGroups)
	activated, order := snap.Detect("Walkability and PLAZA design")
	if !reflect.DeepEqual(order, []string{"walk", "plaza"}) {
		t.Fatalf("order: %v", order)
	}
	walk := activated["walk"]
	if walk.Strength != 1.0/3.0 || !reflect.DeepEqual(walk.MatchedWords, []string{"walkability"}) {
		t.Errorf("walk: %+v", walk)
	}
	if walk.Weight != 1.2 {
		t.Errorf("weight: %v", walk.Weight)
	}
	if activated["plaza"].Strength != 0.5 {
		t.Errorf("plaza strength: %v", activated["plaza"].Strength)
	}

	none, _ := snap.Detect("   ")
	if len(none) != 0 {
		t.Errorf("blank text activated %v", none)
	}
}

func TestExpand_unionsActivatedWords(t *testing.T) {
	snap := mustParse(t, testGroups)
	exp := snap.Expand([]string{"Walkability", "  ", "heat"}, "")
	want := []string{"Walkability", "heat", "street vitality", "pedestrian"}
	if !reflect.DeepEqual(exp.Keywords, want) {
		t.Errorf("keywords: got %v, want %v", exp.Keywords, want)
	}
	if len(exp.Activated) != 1 {
		t.Errorf("activated: %v", exp.Activated)
	}
}

func TestExpand_noMatchReturnsKeywords(t *testing.T) {
	snap := mustParse(t, testGroups)
	exp := snap.Expand([]string{"urban heat island"}, "")
	if !reflect.DeepEqual(exp.Keywords, []string{"urban heat island"}) || len(exp.Activated) != 0 {
		t.Errorf("got %+v", exp)
	}
}

func TestExpand_usesTextForActivation(t *testing.T) {
	snap := mustParse(t, testGroups)
	exp := snap.Expand([]string{"design"}, "a new plaza downtown")
	if _, ok := exp.Activated["plaza"]; !ok {
		t.Fatalf("text should activate plaza: %+v", exp)
	}
	if exp.Keywords[0] != "design" {
		t.Errorf("original keywords come first: %v", exp.Keywords)
	}
}

func TestLoadFile_fallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	snap, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Source != "builtin" || len(snap.Groups) != 4 {
		t.Errorf("missing file: %s %d", snap.Source, len(snap.Groups))
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("config: {x: 1}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	snap, err = LoadFile(empty)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Source != "builtin" || snap.Config["x"] != 1 {
		t.Errorf("empty groups: %+v", snap)
	}
}

func TestNewMatcher_NilLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	if err := os.WriteFile(path, []byte("groups: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(path, WithLogger(nil))
	if len(m.Snapshot().Groups) == 0 {
		t.Error("expected built-in defaults")
	}
	if err := m.Reload(); err == nil {
		t.Error("expected reload error for a broken file")
	}
}

func TestMatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	if err := os.WriteFile(path, []byte(testGroups), 0600); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(path)
	before := m.Snapshot()
	if _, ok := before.Group("walk"); !ok {
		t.Fatal("walk group missing")
	}

	if err := os.WriteFile(path, []byte("groups:\n  tod:\n    words: [TOD]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Snapshot().Group("tod"); !ok {
		t.Error("reload did not pick up tod")
	}
	if _, ok := before.Group("walk"); !ok {
		t.Error("a snapshot taken before reload must not change")
	}

	if err := os.WriteFile(path, []byte("groups: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Error("expected parse error")
	}
	if _, ok := m.Snapshot().Group("tod"); !ok {
		t.Error("failed reload must keep the previous snapshot")
	}
}

func TestMatcher_ConcurrentExpandDuringReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	if err := os.WriteFile(path, []byte(testGroups), 0600); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(path)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				exp := m.Expand([]string{"walkability"}, "")
				if len(exp.Keywords) == 0 {
					t.Error("empty expansion")
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_ = m.Reload()
	}
	wg.Wait()
}

func TestDefaults(t *testing.T) {
	exp := Defaults().Expand([]string{"walkability"}, "")
	if len(exp.Activated) != 1 {
		t.Fatalf("activated: %v", exp.Order)
	}
	if len(exp.Keywords) != 9 {
		t.Errorf("expected the whole walkability group, got %v", exp.Keywords)
	}
}
