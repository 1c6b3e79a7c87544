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

// Package ftpx wraps the two FTP roles this daemon plays: an outbound
// anonymous client (pushing manifests to peers, via github.com/jlaffaye/ftp)
// and an inbound anonymous server (receiving uploads into the spool).
package ftpx

import (
	"io"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

// Client is a thin wrapper over a dialed anonymous FTP session.
type Client struct {
	conn *ftp.ServerConn
}

// Dial connects and logs in anonymously to endpoint.
func Dial(endpoint string) (*Client, error) {
	conn, err := ftp.Dial(endpoint, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", endpoint)
	}
	if err := conn.Login("anonymous", "anonymous"); err != nil {
		conn.Quit()
		return nil, errors.Wrapf(err, "login to %s", endpoint)
	}
	return &Client{conn: conn}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.conn.Quit()
}

// Store uploads r to remotePath.
func (c *Client) Store(remotePath string, r io.Reader) error {
	if err := c.conn.Stor(remotePath, r); err != nil {
		return errors.Wrapf(err, "storing %s", remotePath)
	}
	return nil
}

// Retrieve fetches remotePath, returning a reader the caller must close.
func (c *Client) Retrieve(remotePath string) (io.ReadCloser, error) {
	resp, err := c.conn.Retr(remotePath)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving %s", remotePath)
	}
	return resp, nil
}
