// Copyright 2024 The OSS Rebuild Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ftpx

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Server accepts anonymous FTP uploads into IncomingDir, supporting only
// the command subset an uploader's `.changes` delivery actually needs:
// USER/PASS/TYPE/PWD/CWD/PASV/STOR/QUIT. It is not a general-purpose FTP
// server.
type Server struct {
	Addr        string
	IncomingDir string

	// Received is sent the full path of every file successfully stored,
	// feeding the ingest queue's on-file-received hook.
	Received chan<- string
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.Addr)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "accepting connection")
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	cwd := "/"
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 buildfarm incoming service ready")

	var pasv net.Listener
	defer func() {
		if pasv != nil {
			pasv.Close()
		}
	}()

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "USER":
			tp.PrintfLine("331 anonymous login ok, send any password")
		case "PASS":
			tp.PrintfLine("230 logged in")
		case "TYPE":
			tp.PrintfLine("200 type set to %s", arg)
		case "PWD":
			tp.PrintfLine("257 %q is the current directory", cwd)
		case "CWD":
			cwd = arg
			tp.PrintfLine("250 directory changed to %s", cwd)
		case "PASV":
			if pasv != nil {
				pasv.Close()
			}
			l, err := net.Listen("tcp", net.JoinHostPort(localIP(conn), "0"))
			if err != nil {
				tp.PrintfLine("425 can't open data connection")
				continue
			}
			pasv = l
			tp.PrintfLine("227 entering passive mode (%s)", pasvAddr(l.Addr().(*net.TCPAddr)))
		case "STOR":
			if pasv == nil {
				tp.PrintfLine("425 use PASV first")
				continue
			}
			tp.PrintfLine("150 opening data connection for %s", arg)
			if err := s.store(pasv, arg); err != nil {
				tp.PrintfLine("550 store failed: %v", err)
			} else {
				tp.PrintfLine("226 transfer complete")
				if s.Received != nil {
					s.Received <- filepath.Join(s.IncomingDir, filepath.Base(arg))
				}
			}
			pasv.Close()
			pasv = nil
		case "QUIT":
			tp.PrintfLine("221 goodbye")
			return
		default:
			tp.PrintfLine("502 command not implemented")
		}
	}
}

func (s *Server) store(pasv net.Listener, name string) error {
	dataConn, err := pasv.Accept()
	if err != nil {
		return errors.Wrap(err, "accepting data connection")
	}
	defer dataConn.Close()

	dest := filepath.Join(s.IncomingDir, filepath.Base(name))
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	if _, err := f.ReadFrom(dataConn); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", dest)
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Read-only immediately on receipt: prevents a second uploader from
	// overwriting an in-flight upload of the same filename.
	return os.Chmod(dest, 0o444)
}

func localIP(conn net.Conn) string {
	addr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok || addr.IP == nil {
		return "0.0.0.0"
	}
	return addr.IP.String()
}

func pasvAddr(addr *net.TCPAddr) string {
	ip := addr.IP.To4()
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1)
	}
	p1 := addr.Port / 256
	p2 := addr.Port % 256
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], p1, p2)
}
