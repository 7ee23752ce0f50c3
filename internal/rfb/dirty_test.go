package rfb

import "testing"

func TestDirtyTrackerFirstCallIsFullScreen(t *testing.T) {
	tr := NewDirtyTracker()
	fb := solidFramebuffer(128, 128, [4]byte{1, 2, 3, 0})
	got := tr.Diff(fb, 128, 128)
	want := Rect{X: 0, Y: 0, W: 128, H: 128}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDirtyTrackerIdenticalFramesAreEmpty(t *testing.T) {
	tr := NewDirtyTracker()
	fb := solidFramebuffer(128, 128, [4]byte{1, 2, 3, 0})
	tr.Diff(fb, 128, 128)

	again := append([]byte(nil), fb...)
	got := tr.Diff(again, 128, 128)
	if !got.Empty() {
		t.Fatalf("expected empty region, got %+v", got)
	}
}

func TestDirtyTrackerSinglePixelChangeLiteralScenario(t *testing.T) {
	tr := NewDirtyTracker()
	fb := solidFramebuffer(128, 128, [4]byte{1, 2, 3, 0})
	tr.Diff(fb, 128, 128)

	changed := append([]byte(nil), fb...)
	setPixel(changed, 128, 70, 70, [4]byte{9, 9, 9, 0})

	got := tr.Diff(changed, 128, 128)
	want := Rect{X: 64, Y: 64, W: 64, H: 64}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDirtyTrackerForceFullUpdate(t *testing.T) {
	tr := NewDirtyTracker()
	fb := solidFramebuffer(64, 64, [4]byte{1, 2, 3, 0})
	tr.Diff(fb, 64, 64)
	tr.ForceFullUpdate()

	got := tr.Diff(fb, 64, 64)
	want := Rect{X: 0, Y: 0, W: 64, H: 64}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDirtyTrackerDimensionChangeForcesFullUpdate(t *testing.T) {
	tr := NewDirtyTracker()
	fb1 := solidFramebuffer(64, 64, [4]byte{1, 2, 3, 0})
	tr.Diff(fb1, 64, 64)

	fb2 := solidFramebuffer(128, 64, [4]byte{1, 2, 3, 0})
	got := tr.Diff(fb2, 128, 64)
	want := Rect{X: 0, Y: 0, W: 128, H: 64}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDirtyTrackerMultiTileBoundingBox(t *testing.T) {
	tr := NewDirtyTracker()
	fb := solidFramebuffer(256, 256, [4]byte{0, 0, 0, 0})
	tr.Diff(fb, 256, 256)

	changed := append([]byte(nil), fb...)
	setPixel(changed, 256, 10, 10, [4]byte{1, 1, 1, 0})   // tile (0,0)
	setPixel(changed, 256, 200, 200, [4]byte{1, 1, 1, 0}) // tile (3,3)

	got := tr.Diff(changed, 256, 256)
	want := Rect{X: 0, Y: 0, W: 256, H: 256}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
