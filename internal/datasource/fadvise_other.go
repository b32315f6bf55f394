// +build !linux

package datasource

import "os"

func adviseSequential(f *os.File) error {
	return nil
}
