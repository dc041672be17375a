// Package drivers is a convenience package that registers all built-in
// storage drivers. Import it with a blank identifier to make all drivers
// available:
//
//	import _ "github.com/nuln/urlfile/drivers"
package drivers

import (
	_ "github.com/nuln/urlfile/driver/local"
	_ "github.com/nuln/urlfile/driver/rclone"
	_ "github.com/nuln/urlfile/driver/s3"
	"github.com/nuln/urlfile/store"
)

// Init ensures all built-in drivers are registered.
// This is called automatically by importing the package.
func Init() {}

// List returns a list of all registered storage drivers.
func List() []string {
	return store.Drivers()
}
