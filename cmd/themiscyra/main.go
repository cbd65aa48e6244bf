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

// themiscyra runs one replica of a view-change cluster: the protocol
// node, its durable log, the HTTP peer transport and a small admin
// endpoint for status, metrics and manual suspicion triggers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	cliName        = "themiscyra"
	cliDescription = "A replica server for the view-change protocol."
)

var rootCmd = &cobra.Command{
	Use:        cliName,
	Short:      cliDescription,
	SuggestFor: []string{"themiscyra"},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddCommand(
		newStartCommand(),
		newVersionCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
