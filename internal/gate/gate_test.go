package gate

import (
	"testing"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

func TestCanMutate(t *testing.T) {
	owned := model.Record{ID: "r1", OwnerID: "user-1"}
	ownerless := model.Record{ID: "r2"}

	tests := []struct {
		name   string
		viewer model.Viewer
		record model.Record
		want   bool
	}{
		{"owner", model.Viewer{UserID: "user-1"}, owned, true},
		{"other user", model.Viewer{UserID: "user-2"}, owned, false},
		{"anonymous", model.Anonymous(), owned, false},
		{"anonymous on ownerless record", model.Anonymous(), ownerless, false},
		{"user on ownerless record", model.Viewer{UserID: "user-1"}, ownerless, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanMutate(tt.viewer, tt.record); got != tt.want {
				t.Errorf("CanMutate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanMutate_ReflectsSessionChange(t *testing.T) {
	r := model.Record{ID: "r1", OwnerID: "user-1"}
	viewer := model.Viewer{UserID: "user-1"}

	if !CanMutate(viewer, r) {
		t.Fatal("owner should be allowed")
	}

	// サインアウト後は同じレコードでも拒否される
	viewer = model.Anonymous()
	if CanMutate(viewer, r) {
		t.Error("signed-out viewer must not be allowed")
	}
}

func TestFilter(t *testing.T) {
	records := []model.Record{
		{ID: "a", OwnerID: "u1"},
		{ID: "b", OwnerID: "u2"},
		{ID: "c", OwnerID: "u1"},
	}

	got := Filter(model.Viewer{UserID: "u1"}, records)

	if len(got) != 2 || !got["a"] || !got["c"] || got["b"] {
		t.Errorf("Filter() = %v", got)
	}
}
