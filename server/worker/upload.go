package worker

import "time"

// Upload is an accepted file waiting to be persisted
type Upload struct {
	Name     string // collision-resolved storage name, reserved until persisted
	Original string // name sent by the client
	Data     []byte
	Accepted time.Time
}
