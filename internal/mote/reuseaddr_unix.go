//go:build !windows
// +build !windows

package mote

import "syscall"

func socketReuseAddr(descriptor uintptr) error {
	return syscall.SetsockoptInt(int(descriptor), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
