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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// URLs is a sorted set of peer or client endpoints.
type URLs []url.URL

// NewURLs parses and validates the given URL strings and returns them
// sorted in increasing order. At least one URL must be given. Each URL
// must use the http or https scheme, carry an address of the form
// "host:port", "[host]:port" or "[ipv6-host%zone]:port", and have an
// empty path.
func NewURLs(strs []string) (URLs, error) {
	if len(strs) == 0 {
		return nil, errors.New("no valid URLs given")
	}
	all := make([]url.URL, len(strs))
	for i, in := range strs {
		u, err := parseURL(strings.TrimSpace(in))
		if err != nil {
			return nil, err
		}
		all[i] = *u
	}
	us := URLs(all)
	us.Sort()
	return us, nil
}

// MustNewURLs is NewURLs for statically known inputs such as defaults.
func MustNewURLs(strs []string) URLs {
	us, err := NewURLs(strs)
	if err != nil {
		panic(err)
	}
	return us
}

func parseURL(in string) (*url.URL, error) {
	u, err := url.Parse(in)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https: %s", in)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return nil, fmt.Errorf(`URL address does not have the form "host:port": %s`, in)
	}
	if u.Path != "" {
		return nil, fmt.Errorf("URL must not contain a path: %s", in)
	}
	return u, nil
}

func (us URLs) String() string {
	return strings.Join(us.StringSlice(), ",")
}

func (us URLs) StringSlice() []string {
	out := make([]string, len(us))
	for i := range us {
		out[i] = us[i].String()
	}
	return out
}

// MarshalJSON renders the set as a JSON array of URL strings, so the
// type can sit directly in configuration structs.
func (us URLs) MarshalJSON() ([]byte, error) {
	return json.Marshal(us.StringSlice())
}

// UnmarshalJSON parses a JSON array of URL strings, validating each one
// the same way NewURLs does.
func (us *URLs) UnmarshalJSON(b []byte) error {
	var s []string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	nus, err := NewURLs(s)
	if err != nil {
		return err
	}
	*us = nus
	return nil
}

func (us *URLs) Sort() {
	sort.Sort(us)
}
func (us URLs) Len() int           { return len(us) }
func (us URLs) Less(i, j int) bool { return us[i].String() < us[j].String() }
func (us URLs) Swap(i, j int)      { us[i], us[j] = us[j], us[i] }
