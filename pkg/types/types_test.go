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

package types

import (
	"reflect"
	"sort"
	"testing"
)

func TestIDString(t *testing.T) {
	tests := []struct {
		id ID
		w  string
	}{
		{0, "0"},
		{2, "2"},
		{0xdeadbeef, "deadbeef"},
	}
	for i, tt := range tests {
		if g := tt.id.String(); g != tt.w {
			t.Errorf("#%d: String() = %q, want %q", i, g, tt.w)
		}
		back, err := IDFromString(tt.id.String())
		if err != nil {
			t.Errorf("#%d: IDFromString error: %v", i, err)
		}
		if back != tt.id {
			t.Errorf("#%d: roundtrip = %v, want %v", i, back, tt.id)
		}
	}
	if _, err := IDFromString("not-hex"); err == nil {
		t.Errorf("IDFromString accepted garbage")
	}
}

func TestNewURLs(t *testing.T) {
	tests := []struct {
		strs []string
		wok  bool
	}{
		{[]string{"http://127.0.0.1:2380"}, true},
		{[]string{"https://[::1]:2380", "http://10.0.0.1:2380"}, true},
		{[]string{" http://127.0.0.1:2380 "}, true},
		{nil, false},
		{[]string{"127.0.0.1:2380"}, false},
		{[]string{"unix:///tmp/x.sock"}, false},
		{[]string{"http://127.0.0.1"}, false},
		{[]string{"http://127.0.0.1:2380/path"}, false},
	}
	for i, tt := range tests {
		us, err := NewURLs(tt.strs)
		if (err == nil) != tt.wok {
			t.Errorf("#%d: err = %v, want ok %t", i, err, tt.wok)
			continue
		}
		if err == nil && !sort.IsSorted(&us) {
			t.Errorf("#%d: urls not sorted: %v", i, us)
		}
	}
}

func TestURLsJSONRoundtrip(t *testing.T) {
	us := MustNewURLs([]string{"http://10.0.0.2:2380", "http://10.0.0.1:2380"})
	b, err := us.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var got URLs
	if err := got.UnmarshalJSON(b); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, us) {
		t.Errorf("urls = %v, want %v", got, us)
	}
}

func TestURLsStringJoinsSorted(t *testing.T) {
	us := MustNewURLs([]string{"http://b:2380", "http://a:2380"})
	if g, w := us.String(), "http://a:2380,http://b:2380"; g != w {
		t.Errorf("String() = %q, want %q", g, w)
	}
}
