// SPDX-License-Identifier: MIT
package main

import "github.com/forgekeep/reposync/cmd/repos"

// execute is overridable in tests.
var execute = repos.Execute

func main() {
	execute()
}
