package safe

import (
	"MsgRelay/logger"
)

// Go starts a goroutine that recovers from panic so a bad frame or a
// broken connection never takes the whole relay down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
