// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from a connected Unix socket.
// Returns nil if the kernel refuses; the credentials are for audit
// logging only and never gate access.
func peerCredentials(conn *net.UnixConn) *Credentials {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil
	}
	var ucred *unix.Ucred
	var sockoptErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || sockoptErr != nil || ucred == nil {
		return nil
	}
	return &Credentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}
}
