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

package fileutil

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIsDirWriteable(t *testing.T) {
	tmpdir := t.TempDir()
	require.NoError(t, IsDirWriteable(tmpdir))

	me, err := user.Current()
	if err != nil {
		// err can be non-nil when cross compiled without cgo
		t.Skipf("failed to get current user: %v", err)
	}
	if me.Name == "root" || os.Geteuid() == 0 || runtime.GOOS == "windows" {
		// ACL is not supported and root can write to any directory
		t.Skipf("running as a superuser or in windows")
	}

	require.NoError(t, os.Chmod(tmpdir, 0444))
	require.Error(t, IsDirWriteable(tmpdir))
}

func TestTouchDirAll(t *testing.T) {
	lg := zaptest.NewLogger(t)
	tmpdir := t.TempDir()

	dir := filepath.Join(tmpdir, "a", "b", "c")
	require.NoError(t, TouchDirAll(lg, dir))
	require.True(t, Exist(dir))

	// touching an existing directory checks writability and succeeds
	require.NoError(t, TouchDirAll(lg, dir))

	// a file in the way surfaces as an error
	f := filepath.Join(tmpdir, "file")
	require.NoError(t, os.WriteFile(f, []byte(""), PrivateFileMode))
	require.Error(t, TouchDirAll(lg, filepath.Join(f, "d")))
}

func TestExist(t *testing.T) {
	tmpdir := t.TempDir()
	require.True(t, Exist(tmpdir))

	f := filepath.Join(tmpdir, "fileutil")
	require.NoError(t, os.WriteFile(f, []byte("test"), PrivateFileMode))
	require.True(t, Exist(f))

	require.NoError(t, os.Remove(f))
	require.False(t, Exist(f))
}
