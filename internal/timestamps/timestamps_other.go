//go:build !windows

package timestamps

import "time"

const creationTimeSupported = false

func setCreationTime(string, time.Time) error { return nil }
