package objectstore

import "testing"

func TestKeyFormat(t *testing.T) {
	got := Key("2507.12345", 3, "png")
	want := "figures/2507.12345/fig_3.png"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}
