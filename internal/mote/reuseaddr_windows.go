package mote

import "syscall"

func socketReuseAddr(descriptor uintptr) error {
	return syscall.SetsockoptInt(syscall.Handle(descriptor), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
