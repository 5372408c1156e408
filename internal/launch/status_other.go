//go:build !unix

package launch

import "os"

func terminatingSignal(*os.ProcessState) (int, bool) {
	return 0, false
}
