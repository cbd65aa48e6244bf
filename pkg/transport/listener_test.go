// Copyright 2023 The themiscyra Authors
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

package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func fakeCertificateParserFunc(err error) func(certPEMBlock, keyPEMBlock []byte) (tls.Certificate, error) {
	return func(certPEMBlock, keyPEMBlock []byte) (tls.Certificate, error) {
		return tls.Certificate{}, err
	}
}

// writeFakeTLSInfo returns a TLSInfo whose cert and key files exist but hold
// garbage, with certificate parsing stubbed out.
func writeFakeTLSInfo(t *testing.T, parseErr error) TLSInfo {
	t.Helper()
	d := t.TempDir()
	certFile := filepath.Join(d, "cert.pem")
	keyFile := filepath.Join(d, "key.pem")
	if err := os.WriteFile(certFile, []byte("cert"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, []byte("key"), 0600); err != nil {
		t.Fatal(err)
	}
	return TLSInfo{
		CertFile:  certFile,
		KeyFile:   keyFile,
		parseFunc: fakeCertificateParserFunc(parseErr),
	}
}

func writeFakeCA(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(p, []byte("ca"), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewListenerTCP(t *testing.T) {
	ln, err := NewListener("127.0.0.1:0", "http", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	donec := make(chan struct{})
	go func() {
		defer close(donec)
		conn, aerr := ln.Accept()
		if aerr != nil {
			t.Error(aerr)
			return
		}
		conn.Close()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	<-donec
}

func TestNewListenerUnixSocket(t *testing.T) {
	l, err := NewListener("testsocket", "unix", nil)
	if err != nil {
		t.Errorf("error listening on unix socket (%v)", err)
	}
	l.Close()
}

func TestNewListenerTLSEmptyInfo(t *testing.T) {
	if _, err := NewListener("127.0.0.1:0", "https", nil); err == nil {
		t.Fatalf("err = nil, want not presented error")
	}
}

// TestNewListenerWithOptsReusePort binds the same port twice, which only
// succeeds when both sockets carry SO_REUSEPORT.
func TestNewListenerWithOptsReusePort(t *testing.T) {
	sopts := &SocketOpts{ReusePort: true}
	l1, err := NewListenerWithOpts("127.0.0.1:0", "http", nil, sopts)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()

	l2, err := NewListenerWithOpts(l1.Addr().String(), "http", nil, sopts)
	if err != nil {
		t.Fatalf("second bind with SO_REUSEPORT failed: %v", err)
	}
	defer l2.Close()
}

func TestNewListenerRebindWithoutReusePort(t *testing.T) {
	l1, err := NewListener("127.0.0.1:0", "http", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()

	l2, err := NewListener(l1.Addr().String(), "http", nil)
	if err == nil {
		l2.Close()
		t.Fatalf("expected bind error without SO_REUSEPORT, got nil")
	}
}

func TestSocketOptsEmpty(t *testing.T) {
	tests := []struct {
		sopts SocketOpts
		want  bool
	}{
		{SocketOpts{}, true},
		{SocketOpts{ReuseAddress: true}, false},
		{SocketOpts{ReusePort: true}, false},
		{SocketOpts{ReuseAddress: true, ReusePort: true}, false},
	}
	for i, tt := range tests {
		if got := tt.sopts.Empty(); got != tt.want {
			t.Errorf("#%d: Empty() = %t, want %t", i, got, tt.want)
		}
	}
}

func TestTLSInfoEmpty(t *testing.T) {
	tests := []struct {
		info TLSInfo
		want bool
	}{
		{TLSInfo{}, true},
		{TLSInfo{TrustedCAFile: "baz"}, true},
		{TLSInfo{CertFile: "foo"}, false},
		{TLSInfo{KeyFile: "bar"}, false},
		{TLSInfo{CertFile: "foo", KeyFile: "bar"}, false},
	}
	for i, tt := range tests {
		if got := tt.info.Empty(); got != tt.want {
			t.Errorf("#%d: result of Empty() incorrect: want=%t got=%t", i, tt.want, got)
		}
	}
}

func TestTLSInfoMissingFields(t *testing.T) {
	tests := []TLSInfo{
		{CertFile: "cert.pem"},
		{KeyFile: "key.pem"},
	}
	for i, info := range tests {
		if _, err := info.ServerConfig(); err == nil {
			t.Errorf("#%d: expected non-nil error from ServerConfig()", i)
		}

		if _, err := info.ClientConfig(); err == nil {
			t.Errorf("#%d: expected non-nil error from ClientConfig()", i)
		}
	}
}

func TestTLSInfoParseFuncError(t *testing.T) {
	info := writeFakeTLSInfo(t, errors.New("fake"))

	if _, err := info.ServerConfig(); err == nil {
		t.Errorf("expected non-nil error from ServerConfig()")
	}

	if _, err := info.ClientConfig(); err == nil {
		t.Errorf("expected non-nil error from ClientConfig()")
	}
}

func TestTLSInfoConfigFuncs(t *testing.T) {
	base := writeFakeTLSInfo(t, nil)
	withCA := base
	withCA.TrustedCAFile = writeFakeCA(t)

	tests := []struct {
		info       TLSInfo
		clientAuth tls.ClientAuthType
		wantCAs    bool
	}{
		{base, tls.NoClientCert, false},
		{withCA, tls.RequireAndVerifyClientCert, true},
	}
	for i, tt := range tests {
		sCfg, err := tt.info.ServerConfig()
		if err != nil {
			t.Errorf("#%d: unexpected ServerConfig error: %v", i, err)
			continue
		}
		if sCfg.ClientAuth != tt.clientAuth {
			t.Errorf("#%d: ClientAuth = %v, want %v", i, sCfg.ClientAuth, tt.clientAuth)
		}
		if (sCfg.ClientCAs != nil) != tt.wantCAs {
			t.Errorf("#%d: ClientCAs presence = %t, want %t", i, sCfg.ClientCAs != nil, tt.wantCAs)
		}
		if sCfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("#%d: MinVersion = %x, want TLS 1.2", i, sCfg.MinVersion)
		}

		cCfg, err := tt.info.ClientConfig()
		if err != nil {
			t.Errorf("#%d: unexpected ClientConfig error: %v", i, err)
			continue
		}
		if (cCfg.RootCAs != nil) != tt.wantCAs {
			t.Errorf("#%d: RootCAs presence = %t, want %t", i, cCfg.RootCAs != nil, tt.wantCAs)
		}
	}
}
