package drivers_test

import (
	"slices"
	"testing"

	"github.com/nuln/urlfile/drivers"
)

func TestAllDriversRegistered(t *testing.T) {
	drivers.Init()

	got := drivers.List()
	for _, name := range []string{"local", "rclone", "s3"} {
		if !slices.Contains(got, name) {
			t.Errorf("driver %q not registered; have %v", name, got)
		}
	}
}
