package assetpath

import (
	"errors"
	"testing"

	"github.com/datallboy/mediaq/internal/domain"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Demo", "demo"},
		{"  The Quick -- Brown Fox!  ", "the-quick-brown-fox"},
		{"Amélie", "amelie"},
		{"Pokémon: Mewtwo Strikes Back", "pokemon-mewtwo-strikes-back"},
		{"１２３", "123"},
		{"???", "untitled"},
		{"", "untitled"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestImagePathIsIdempotent(t *testing.T) {
	first, err := ImagePath("demo", domain.RoleThumb, "jpg")
	if err != nil {
		t.Fatalf("ImagePath failed: %v", err)
	}
	second, _ := ImagePath("demo", domain.RoleThumb, "jpg")
	if first != second {
		t.Fatalf("expected identical paths, got %q and %q", first, second)
	}
	if first != "images/demo.thumb.jpg" {
		t.Fatalf("unexpected path %q", first)
	}

	again, _ := ImagePath(Slugify("Demo"), domain.RoleThumb, ".JPEG")
	if again != first {
		t.Fatalf("expected normalised path %q, got %q", first, again)
	}
}

func TestImagePathRejectsUnknownRole(t *testing.T) {
	_, err := ImagePath("demo", domain.ImageRole("logo"), "png")
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestHLSDir(t *testing.T) {
	if got := HLSDir("Demo", 1); got != "hls/demo/ep-1" {
		t.Fatalf("unexpected dir %q", got)
	}
}

func TestRoleFromPath(t *testing.T) {
	cases := map[string]domain.ImageRole{
		"images/demo.thumb.jpg":          domain.RoleThumb,
		"images/demo.banner.webp":        domain.RoleBanner,
		"images/my.show.2020.banner.png": domain.RoleBanner,
	}
	for in, want := range cases {
		got, err := RoleFromPath(in)
		if err != nil || got != want {
			t.Errorf("RoleFromPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, bad := range []string{"images/demo.jpg", "images/demo.logo.png", "hls/demo/ep-1"} {
		if _, err := RoleFromPath(bad); !errors.Is(err, domain.ErrUnknownRole) {
			t.Errorf("RoleFromPath(%q): expected ErrUnknownRole, got %v", bad, err)
		}
	}
}

func TestImageExt(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example/p/poster.PNG":        "png",
		"https://cdn.example/p/poster.jpeg?w=300": "jpg",
		"https://cdn.example/p/poster":            "jpg",
		"https://cdn.example/p/poster.php?id=1":   "jpg",
		"https://cdn.example/p/banner.webp":       "webp",
	}
	for in, want := range cases {
		if got := ImageExt(in); got != want {
			t.Errorf("ImageExt(%q) = %q, want %q", in, got, want)
		}
	}
}
