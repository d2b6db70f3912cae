// Package banner renders the CLI startup banner.
package banner

import "fmt"

const art = `
  ___ _ __   __ _ _ __ ___  ___ _ __  _ __
 / __| '_ \ / _' | '__/ __|/ _ \ '_ \| '__|
 \__ \ |_) | (_| | |  \__ \  __/ |_) | |
 |___/ .__/ \__,_|_|  |___/\___| .__/|_|
     |_|                       |_|
`

// Banner returns the banner with the version appended.
func Banner(version string) string {
	return fmt.Sprintf("%s  posterior regularization %s\n\n", art, version)
}
